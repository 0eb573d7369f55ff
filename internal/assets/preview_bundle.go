package assets

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/temirov/trustx-migrate/internal/platform"
)

const (
	bundleIndexFileNameConstant              = "index.html"
	linkElementNameConstant                  = "link"
	scriptElementNameConstant                = "script"
	imageElementNameConstant                 = "img"
	relAttributeNameConstant                 = "rel"
	hrefAttributeNameConstant                = "href"
	sourceAttributeNameConstant              = "src"
	stylesheetRelationConstant               = "stylesheet"
	dataURLPrefixConstant                    = "data:"
	fragmentPrefixConstant                   = "#"
	parentDirectorySegmentConstant           = ".."
	previewURLParseErrorTemplateConstant     = "invalid preview URL %q: %w"
	previewParseErrorTemplateConstant        = "unable to parse custom page preview: %w"
	bundleWriteErrorTemplateConstant         = "unable to write custom page bundle: %w"
	bundleAssetSkippedTemplateConstant       = "asset %s skipped: %v"
	bundleAssetSkippedReasonTemplateConstant = "asset %s skipped: %s"
	bundleExternalReasonConstant             = "absolute URL stays external"
	bundleEmptyPathReasonConstant            = "link has no file path"
	bundleEscapesReasonConstant              = "path leaves the page directory"
	rootPathPrefixConstant                   = "/"
	bundleOperationNameConstant              = platform.OperationName("BundleCustomPage")
	bundleArchiveFieldNameConstant           = "archive"
	emptyPreviewMessageTemplateConstant      = "preview %s returned no content"
)

// AssetDownloader retrieves binary resources by absolute URL.
type AssetDownloader interface {
	DownloadAsset(downloadContext context.Context, assetURL string) ([]byte, error)
}

// PageBundle is a zipped custom page with the warnings raised while collecting its assets.
type PageBundle struct {
	Archive  []byte
	Files    []string
	Warnings []string
}

// BuildPageBundle downloads the preview HTML and every relative stylesheet, script and image it links,
// then zips them with the HTML stored as index.html.
// Missing, external and escaping assets are skipped with a warning; any other download failure fails the bundle.
func BuildPageBundle(bundleContext context.Context, downloader AssetDownloader, previewURL string) (PageBundle, error) {
	baseURL, parseError := url.Parse(strings.TrimSpace(previewURL))
	if parseError != nil {
		return PageBundle{}, fmt.Errorf(previewURLParseErrorTemplateConstant, previewURL, parseError)
	}

	page, downloadError := downloader.DownloadAsset(bundleContext, baseURL.String())
	if downloadError != nil {
		return PageBundle{}, downloadError
	}
	if len(bytes.TrimSpace(page)) == 0 {
		return PageBundle{}, platform.MissingContentError{Operation: bundleOperationNameConstant, Field: fmt.Sprintf(emptyPreviewMessageTemplateConstant, previewURL)}
	}

	links, linkError := collectPageLinks(page)
	if linkError != nil {
		return PageBundle{}, platform.ResponseDecodingError{Operation: bundleOperationNameConstant, Cause: linkError}
	}

	var archiveBuffer bytes.Buffer
	archiveWriter := zip.NewWriter(&archiveBuffer)
	bundle := PageBundle{}
	if writeError := writeBundleEntry(archiveWriter, bundleIndexFileNameConstant, page); writeError != nil {
		return PageBundle{}, writeError
	}
	bundle.Files = append(bundle.Files, bundleIndexFileNameConstant)
	writtenEntries := map[string]struct{}{bundleIndexFileNameConstant: {}}

	for _, link := range links {
		reference, referenceError := url.Parse(link)
		if referenceError != nil {
			bundle.Warnings = append(bundle.Warnings, fmt.Sprintf(bundleAssetSkippedTemplateConstant, link, referenceError))
			continue
		}
		entryName, skipReason := bundleEntryName(reference)
		if len(skipReason) > 0 {
			bundle.Warnings = append(bundle.Warnings, fmt.Sprintf(bundleAssetSkippedReasonTemplateConstant, link, skipReason))
			continue
		}
		if _, written := writtenEntries[entryName]; written {
			continue
		}
		assetURL := baseURL.ResolveReference(reference).String()
		contents, assetError := downloader.DownloadAsset(bundleContext, assetURL)
		if assetError != nil {
			var notFoundError platform.NotFoundError
			if errors.As(assetError, &notFoundError) {
				bundle.Warnings = append(bundle.Warnings, fmt.Sprintf(bundleAssetSkippedTemplateConstant, link, assetError))
				continue
			}
			return PageBundle{}, assetError
		}
		if writeError := writeBundleEntry(archiveWriter, entryName, contents); writeError != nil {
			return PageBundle{}, writeError
		}
		writtenEntries[entryName] = struct{}{}
		bundle.Files = append(bundle.Files, entryName)
	}

	if closeError := archiveWriter.Close(); closeError != nil {
		return PageBundle{}, fmt.Errorf(bundleWriteErrorTemplateConstant, closeError)
	}
	bundle.Archive = archiveBuffer.Bytes()
	if len(bundle.Archive) == 0 {
		return PageBundle{}, platform.MissingContentError{Operation: bundleOperationNameConstant, Field: bundleArchiveFieldNameConstant}
	}
	return bundle, nil
}

// collectPageLinks returns distinct stylesheet, script and image references in document order.
func collectPageLinks(page []byte) ([]string, error) {
	root, parseError := html.Parse(bytes.NewReader(page))
	if parseError != nil {
		return nil, fmt.Errorf(previewParseErrorTemplateConstant, parseError)
	}

	var links []string
	seen := make(map[string]struct{})
	var visit func(node *html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if link, linked := elementLink(node); linked {
				if _, duplicate := seen[link]; !duplicate {
					seen[link] = struct{}{}
					links = append(links, link)
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(root)
	return links, nil
}

func elementLink(node *html.Node) (string, bool) {
	var candidate string
	switch node.Data {
	case linkElementNameConstant:
		if !hasRelation(attributeValue(node, relAttributeNameConstant), stylesheetRelationConstant) {
			return "", false
		}
		candidate = attributeValue(node, hrefAttributeNameConstant)
	case scriptElementNameConstant, imageElementNameConstant:
		candidate = attributeValue(node, sourceAttributeNameConstant)
	default:
		return "", false
	}

	candidate = strings.TrimSpace(candidate)
	if len(candidate) == 0 || strings.HasPrefix(candidate, dataURLPrefixConstant) || strings.HasPrefix(candidate, fragmentPrefixConstant) {
		return "", false
	}
	return candidate, true
}

func attributeValue(node *html.Node, name string) string {
	for _, attribute := range node.Attr {
		if strings.EqualFold(attribute.Key, name) {
			return attribute.Val
		}
	}
	return ""
}

func hasRelation(relations string, relation string) bool {
	for _, candidate := range strings.Fields(relations) {
		if strings.EqualFold(candidate, relation) {
			return true
		}
	}
	return false
}

// bundleEntryName maps a page-relative or root-relative link to its archive path.
// Root-relative links are stored without their leading slash.
func bundleEntryName(reference *url.URL) (string, string) {
	if reference.IsAbs() || len(reference.Host) > 0 {
		return "", bundleExternalReasonConstant
	}
	cleaned := path.Clean(strings.TrimPrefix(reference.Path, rootPathPrefixConstant))
	switch {
	case cleaned == "." || cleaned == rootPathPrefixConstant:
		return "", bundleEmptyPathReasonConstant
	case cleaned == parentDirectorySegmentConstant || strings.HasPrefix(cleaned, parentDirectorySegmentConstant+rootPathPrefixConstant):
		return "", bundleEscapesReasonConstant
	default:
		return cleaned, ""
	}
}

func writeBundleEntry(archiveWriter *zip.Writer, name string, contents []byte) error {
	entryWriter, createError := archiveWriter.Create(name)
	if createError != nil {
		return fmt.Errorf(bundleWriteErrorTemplateConstant, createError)
	}
	if _, writeError := entryWriter.Write(contents); writeError != nil {
		return fmt.Errorf(bundleWriteErrorTemplateConstant, writeError)
	}
	return nil
}
