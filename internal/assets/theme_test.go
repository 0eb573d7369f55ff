package assets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/trustx-migrate/internal/assets"
	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

type stubThemeSource struct {
	mapDownloader
	environment platform.Environment
	themes      map[string]map[string]any
}

func (source *stubThemeSource) Environment() platform.Environment {
	return source.environment
}

func (source *stubThemeSource) FetchTheme(_ context.Context, themeID string) (map[string]any, error) {
	theme, exists := source.themes[themeID]
	if !exists {
		return nil, platform.NotFoundError{Operation: "FetchTheme", Resource: themeID}
	}
	return theme, nil
}

type recordingThemeDestination struct {
	calls        []string
	skeleton     platform.ThemeSkeleton
	uploads      []shared.Attachment
	uploadErrors map[string]error
	documents    map[string]map[string]any
}

func (destination *recordingThemeDestination) CreateThemeSkeleton(_ context.Context, skeleton platform.ThemeSkeleton) (platform.CreatedRecord, error) {
	destination.calls = append(destination.calls, "create")
	destination.skeleton = skeleton
	return platform.CreatedRecord{ID: "theme-new", Name: skeleton.Name, Version: "1"}, nil
}

func (destination *recordingThemeDestination) UploadThemeAsset(_ context.Context, themeID string, attachment shared.Attachment) error {
	destination.calls = append(destination.calls, "upload:"+themeID+":"+attachment.FileName)
	if uploadError, failing := destination.uploadErrors[attachment.FileName]; failing {
		return uploadError
	}
	destination.uploads = append(destination.uploads, attachment)
	return nil
}

func (destination *recordingThemeDestination) UpdateTheme(_ context.Context, themeID string, document map[string]any) error {
	destination.calls = append(destination.calls, "update:"+themeID)
	if destination.documents == nil {
		destination.documents = map[string]map[string]any{}
	}
	destination.documents[themeID] = document
	return nil
}

func (destination *recordingThemeDestination) ActivateAsset(_ context.Context, kind shared.AssetKind, created platform.CreatedRecord) (platform.CreatedRecord, error) {
	destination.calls = append(destination.calls, "activate:"+string(kind)+":"+created.ID)
	activated := created
	activated.Version = "2"
	return activated, nil
}

func sourceTheme() map[string]any {
	return map[string]any{
		"id":          "theme-old",
		"name":        "Corporate",
		"description": "Corporate colours",
		"version":     7,
		"status":      "DEPLOYED_ACTIVE",
		"createdBy":   "someone",
		"palette":     map[string]any{"primary": "#112233", "accents": []any{"#445566"}},
		"assets": map[string]any{
			"global": []any{
				map[string]any{"path": "https://cdn.source.example.com/theme/HeadingFont.ttf"},
				map[string]any{"path": "files/theme/logo.png"},
				map[string]any{"path": "files/theme/gone.svg"},
			},
		},
	}
}

func TestTransformThemeContentStripsSourceFieldsWithoutMutation(testInstance *testing.T) {
	original := shared.AssetContent{Name: "Corporate", Document: sourceTheme()}

	transformed, transformError := assets.TransformThemeContent(original)
	require.NoError(testInstance, transformError)

	for _, field := range []string{"id", "version", "status", "createdBy", "assets"} {
		require.NotContains(testInstance, transformed.Document, field)
		require.Contains(testInstance, original.Document, field)
	}
	require.Equal(testInstance, "Corporate colours", transformed.Document["description"])

	palette := transformed.Document["palette"].(map[string]any)
	palette["primary"] = "#000000"
	require.Equal(testInstance, "#112233", original.Document["palette"].(map[string]any)["primary"])
}

func TestThemeMigratorFetchDownloadsAssets(testInstance *testing.T) {
	source := &stubThemeSource{
		mapDownloader: mapDownloader{files: map[string][]byte{
			"https://cdn.source.example.com/theme/HeadingFont.ttf": []byte("font-bytes"),
			"https://source.example.com/files/theme/logo.png":      []byte("logo-bytes"),
		}},
		environment: platform.Environment{Name: platform.EnvironmentNameSource, BaseURL: "https://source.example.com/"},
		themes:      map[string]map[string]any{"theme-old": sourceTheme()},
	}
	migrator := assets.NewThemeMigrator(source, &recordingThemeDestination{})

	content, fetchError := migrator.Fetch(context.Background(), shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: "theme-old"})
	require.NoError(testInstance, fetchError)

	require.Equal(testInstance, "Corporate", content.Name)
	require.Equal(testInstance, "7", content.Version)
	require.Equal(testInstance, []shared.Attachment{
		{FileName: "HeadingFont.ttf", ContentType: "font/ttf", Data: []byte("font-bytes")},
		{FileName: "logo.png", ContentType: "image/png", Data: []byte("logo-bytes")},
	}, content.Attachments)
	require.Len(testInstance, content.Warnings, 1)
	require.Contains(testInstance, content.Warnings[0], "gone.svg")
}

func TestThemeMigratorCreateSequence(testInstance *testing.T) {
	destination := &recordingThemeDestination{}
	migrator := assets.NewThemeMigrator(&stubThemeSource{}, destination)

	transformed, transformError := migrator.Transform(shared.AssetContent{
		Reference:   shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: "theme-old"},
		Name:        "Corporate",
		Document:    sourceTheme(),
		Attachments: []shared.Attachment{{FileName: "logo.png", ContentType: "image/png", Data: []byte("logo")}},
	})
	require.NoError(testInstance, transformError)

	retrier := assets.NewStepRetrier(fastRetryPolicy())
	created, createError := migrator.Create(context.Background(), transformed, retrier)
	require.NoError(testInstance, createError)

	require.Equal(testInstance, assets.CreatedAsset{ID: "theme-new", Name: "Corporate", Version: "2"}, created)
	require.Equal(testInstance, []string{"create", "upload:theme-new:logo.png", "update:theme-new", "activate:theme:theme-new"}, destination.calls)
	require.Equal(testInstance, 4, retrier.Attempts())
	require.Equal(testInstance, "Corporate", destination.skeleton.Name)
	require.Equal(testInstance, "Corporate colours", destination.skeleton.Description)
	require.Equal(testInstance, map[string]any{"primary": "#112233", "accents": []any{"#445566"}}, destination.skeleton.Palette)

	replayed := destination.documents["theme-new"]
	require.Equal(testInstance, "theme-new", replayed["id"])
	require.NotContains(testInstance, replayed, "assets")
	require.NotContains(testInstance, transformed.Document, "id")
}

func TestThemeMigratorFetchSurfacesMissingTheme(testInstance *testing.T) {
	migrator := assets.NewThemeMigrator(&stubThemeSource{themes: map[string]map[string]any{}}, &recordingThemeDestination{})

	_, fetchError := migrator.Fetch(context.Background(), shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: "absent"})
	require.Equal(testInstance, shared.FailureCategoryNotFound, platform.Classify(fetchError))
}

func TestThemeMigratorContinuesAfterAssetUploadFailure(testInstance *testing.T) {
	testCases := []struct {
		name             string
		uploadError      error
		expectedUploads  int
		expectedAttempts int
	}{
		{
			name:             "rejected upload",
			uploadError:      platform.ValidationError{Operation: "UploadThemeAsset", StatusCode: 413, Message: "too large"},
			expectedUploads:  1,
			expectedAttempts: 5,
		},
		{
			name:             "upload keeps timing out",
			uploadError:      platform.TransientNetworkError{Operation: "UploadThemeAsset", StatusCode: 504},
			expectedUploads:  3,
			expectedAttempts: 7,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			destination := &recordingThemeDestination{uploadErrors: map[string]error{"HeadingFont.ttf": testCase.uploadError}}
			migrator := assets.NewThemeMigrator(&stubThemeSource{}, destination)

			transformed, transformError := migrator.Transform(shared.AssetContent{
				Reference: shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: "theme-old"},
				Name:      "Corporate",
				Document:  sourceTheme(),
				Attachments: []shared.Attachment{
					{FileName: "HeadingFont.ttf", ContentType: "font/ttf", Data: []byte("font")},
					{FileName: "logo.png", ContentType: "image/png", Data: []byte("logo")},
				},
			})
			require.NoError(subTest, transformError)

			retrier := assets.NewStepRetrier(fastRetryPolicy())
			created, createError := migrator.Create(context.Background(), transformed, retrier)
			require.NoError(subTest, createError)

			require.Equal(subTest, "theme-new", created.ID)
			require.Len(subTest, created.Warnings, 1)
			require.Contains(subTest, created.Warnings[0], "HeadingFont.ttf")
			require.Equal(subTest, []shared.Attachment{{FileName: "logo.png", ContentType: "image/png", Data: []byte("logo")}}, destination.uploads)

			uploadCalls := 0
			for _, call := range destination.calls {
				if call == "upload:theme-new:HeadingFont.ttf" {
					uploadCalls++
				}
			}
			require.Equal(subTest, testCase.expectedUploads, uploadCalls)
			require.Equal(subTest, "activate:theme:theme-new", destination.calls[len(destination.calls)-1])
			require.Equal(subTest, testCase.expectedAttempts, retrier.Attempts())
		})
	}
}

func TestThemeMigratorSnapshotKeepsDocumentAndAssets(testInstance *testing.T) {
	migrator := assets.NewThemeMigrator(&stubThemeSource{}, &recordingThemeDestination{})
	content := shared.AssetContent{
		Reference:      shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: "theme-old"},
		Name:           "Corporate",
		Version:        "7",
		SourceRecordID: "theme-old",
		Document:       map[string]any{"name": "Corporate"},
		Attachments:    []shared.Attachment{{FileName: "logo.png", ContentType: "image/png", Data: []byte("logo")}},
	}

	artifacts := migrator.Snapshot(content)

	require.Len(testInstance, artifacts, 2)
	require.Equal(testInstance, "Corporate_theme-old_v7/theme.json", artifacts[0].FileName)
	require.JSONEq(testInstance, `{"name":"Corporate"}`, string(artifacts[0].Data))
	require.Equal(testInstance, shared.SourceArtifact{FileName: "Corporate_theme-old_v7/assets/logo.png", Data: []byte("logo")}, artifacts[1])
}
