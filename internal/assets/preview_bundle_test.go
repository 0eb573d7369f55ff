package assets_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/trustx-migrate/internal/assets"
	"github.com/temirov/trustx-migrate/internal/platform"
)

const (
	previewURLConstant  = "https://source.example.com/pages/welcome/preview/index.html"
	previewPageConstant = `<!DOCTYPE html>
<html>
<head>
  <link rel="stylesheet" href="css/app.css">
  <link rel="icon" href="favicon.ico">
  <link rel="preload stylesheet" href="./css/app.css">
  <script src="js/app.js"></script>
  <script src="/static/vendor.js"></script>
  <script>console.log("inline")</script>
  <script src="https://cdn.example.com/lib.js"></script>
</head>
<body>
  <img src="images/logo.png">
  <img src="data:image/png;base64,AAAA">
  <img src="#placeholder">
  <img src="images/missing.png">
  <img src="../shared/banner.png">
</body>
</html>`
)

type mapDownloader struct {
	files     map[string][]byte
	requested []string
}

func (downloader *mapDownloader) DownloadAsset(_ context.Context, assetURL string) ([]byte, error) {
	downloader.requested = append(downloader.requested, assetURL)
	contents, exists := downloader.files[assetURL]
	if !exists {
		return nil, platform.NotFoundError{Operation: "DownloadAsset", Resource: assetURL}
	}
	return contents, nil
}

func readArchive(testInstance *testing.T, archive []byte) map[string]string {
	testInstance.Helper()
	reader, readerError := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(testInstance, readerError)

	entries := map[string]string{}
	for _, file := range reader.File {
		fileReader, openError := file.Open()
		require.NoError(testInstance, openError)
		contents, readError := io.ReadAll(fileReader)
		require.NoError(testInstance, readError)
		require.NoError(testInstance, fileReader.Close())
		entries[file.Name] = string(contents)
	}
	return entries
}

func TestBuildPageBundleCollectsRelativeAssets(testInstance *testing.T) {
	downloader := &mapDownloader{files: map[string][]byte{
		previewURLConstant: []byte(previewPageConstant),
		"https://source.example.com/pages/welcome/preview/css/app.css":     []byte("body{}"),
		"https://source.example.com/pages/welcome/preview/js/app.js":       []byte("run()"),
		"https://source.example.com/static/vendor.js":                      []byte("vendor()"),
		"https://source.example.com/pages/welcome/preview/images/logo.png": []byte("png"),
	}}

	bundle, bundleError := assets.BuildPageBundle(context.Background(), downloader, previewURLConstant)
	require.NoError(testInstance, bundleError)

	require.Equal(testInstance, []string{"index.html", "css/app.css", "js/app.js", "static/vendor.js", "images/logo.png"}, bundle.Files)
	require.Len(testInstance, bundle.Warnings, 3)
	require.Contains(testInstance, bundle.Warnings[0], "https://cdn.example.com/lib.js")
	require.Contains(testInstance, bundle.Warnings[0], "absolute URL stays external")
	require.Contains(testInstance, bundle.Warnings[1], "images/missing.png")
	require.Contains(testInstance, bundle.Warnings[2], "../shared/banner.png")
	require.Contains(testInstance, bundle.Warnings[2], "path leaves the page directory")

	entries := readArchive(testInstance, bundle.Archive)
	require.Equal(testInstance, previewPageConstant, entries["index.html"])
	require.Equal(testInstance, "body{}", entries["css/app.css"])
	require.Equal(testInstance, "run()", entries["js/app.js"])
	require.Equal(testInstance, "vendor()", entries["static/vendor.js"])
	require.Equal(testInstance, "png", entries["images/logo.png"])
	require.Len(testInstance, entries, 5)

	require.NotContains(testInstance, downloader.requested, "https://cdn.example.com/lib.js")
}

func TestBuildPageBundleStoresRootRelativeLinksWithoutLeadingSlash(testInstance *testing.T) {
	testCases := []struct {
		name          string
		link          string
		servedURL     string
		expectedEntry string
		expectedWarn  string
	}{
		{name: "root relative script", link: "/static/app.js", servedURL: "https://source.example.com/static/app.js", expectedEntry: "static/app.js"},
		{name: "root relative with dot segments", link: "/static/./nested/../app.js", servedURL: "https://source.example.com/static/app.js", expectedEntry: "static/app.js"},
		{name: "root relative escaping", link: "/../secret.js", expectedWarn: "path leaves the page directory"},
		{name: "protocol relative", link: "//cdn.example.com/app.js", expectedWarn: "absolute URL stays external"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			files := map[string][]byte{previewURLConstant: []byte(`<script src="` + testCase.link + `"></script>`)}
			if len(testCase.servedURL) > 0 {
				files[testCase.servedURL] = []byte("app()")
			}
			downloader := &mapDownloader{files: files}

			bundle, bundleError := assets.BuildPageBundle(context.Background(), downloader, previewURLConstant)
			require.NoError(subTest, bundleError)

			if len(testCase.expectedEntry) > 0 {
				require.Equal(subTest, []string{"index.html", testCase.expectedEntry}, bundle.Files)
				require.Empty(subTest, bundle.Warnings)
				require.Equal(subTest, "app()", readArchive(subTest, bundle.Archive)[testCase.expectedEntry])
				return
			}
			require.Equal(subTest, []string{"index.html"}, bundle.Files)
			require.Len(subTest, bundle.Warnings, 1)
			require.Contains(subTest, bundle.Warnings[0], testCase.expectedWarn)
		})
	}
}

func TestBuildPageBundleFailures(testInstance *testing.T) {
	testCases := []struct {
		name             string
		files            map[string][]byte
		failingURL       string
		failure          error
		expectedCategory string
	}{
		{
			name:             "missing preview",
			files:            map[string][]byte{},
			expectedCategory: "not_found",
		},
		{
			name:             "empty preview",
			files:            map[string][]byte{previewURLConstant: []byte("  ")},
			expectedCategory: "content",
		},
		{
			name:             "transient asset failure",
			files:            map[string][]byte{previewURLConstant: []byte(`<link rel="stylesheet" href="app.css">`)},
			failingURL:       "https://source.example.com/pages/welcome/preview/app.css",
			failure:          platform.TransientNetworkError{Operation: "DownloadAsset", StatusCode: 502},
			expectedCategory: "transient",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			downloader := &failingDownloader{
				mapDownloader: mapDownloader{files: testCase.files},
				failingURL:    testCase.failingURL,
				failure:       testCase.failure,
			}
			_, bundleError := assets.BuildPageBundle(context.Background(), downloader, previewURLConstant)
			require.Error(subTest, bundleError)
			require.Equal(subTest, testCase.expectedCategory, string(platform.Classify(bundleError)))
		})
	}
}

type failingDownloader struct {
	mapDownloader
	failingURL string
	failure    error
}

func (downloader *failingDownloader) DownloadAsset(downloadContext context.Context, assetURL string) ([]byte, error) {
	if len(downloader.failingURL) > 0 && assetURL == downloader.failingURL {
		return nil, downloader.failure
	}
	return downloader.mapDownloader.DownloadAsset(downloadContext, assetURL)
}
