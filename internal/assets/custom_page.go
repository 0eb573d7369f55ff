package assets

import (
	"context"
	"fmt"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	customPageLabelConstant            = "custom page"
	customPageSnapshotTemplateConstant = "%s_v%s.zip"
)

// CustomPageSource resolves custom pages and downloads their preview files.
type CustomPageSource interface {
	AssetDownloader
	FetchCustomPage(fetchContext context.Context, reference shared.AssetReference) (platform.CustomPage, error)
}

// CustomPageDestination creates and activates custom pages from zipped bundles.
type CustomPageDestination interface {
	AssetActivator
	CreateCustomPage(createContext context.Context, draft platform.CustomPageDraft) (platform.CreatedRecord, error)
}

// CustomPageMigrator rebuilds custom page bundles from their source previews.
type CustomPageMigrator struct {
	source      CustomPageSource
	destination CustomPageDestination
}

// NewCustomPageMigrator constructs a CustomPageMigrator.
func NewCustomPageMigrator(source CustomPageSource, destination CustomPageDestination) *CustomPageMigrator {
	return &CustomPageMigrator{source: source, destination: destination}
}

// Kind reports the custom page asset kind.
func (migrator *CustomPageMigrator) Kind() shared.AssetKind {
	return shared.AssetKindCustomPage
}

// Describe renders the reference for logs.
func (migrator *CustomPageMigrator) Describe(reference shared.AssetReference) string {
	return describeReference(customPageLabelConstant, reference)
}

// Fetch resolves the page version and zips its preview with the linked assets.
func (migrator *CustomPageMigrator) Fetch(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	page, fetchError := migrator.source.FetchCustomPage(fetchContext, reference)
	if fetchError != nil {
		return shared.AssetContent{}, fetchError
	}
	bundle, bundleError := BuildPageBundle(fetchContext, migrator.source, page.PreviewURL)
	if bundleError != nil {
		return shared.AssetContent{}, bundleError
	}

	content := page.Content
	content.Payload = bundle.Archive
	content.Warnings = append(content.Warnings, bundle.Warnings...)
	return content, nil
}

// Transform returns the content unchanged.
func (migrator *CustomPageMigrator) Transform(content shared.AssetContent) (shared.AssetContent, error) {
	return content, nil
}

// Snapshot keeps the bundled page archive, named after its source version.
func (migrator *CustomPageMigrator) Snapshot(content shared.AssetContent) []shared.SourceArtifact {
	return []shared.SourceArtifact{{FileName: fmt.Sprintf(customPageSnapshotTemplateConstant, destinationName(content), content.Version), Data: content.Payload}}
}

// Create uploads the bundle and deploys the page.
func (migrator *CustomPageMigrator) Create(createContext context.Context, content shared.AssetContent, retrier *StepRetrier) (CreatedAsset, error) {
	draft := platform.CustomPageDraft{
		Name:        destinationName(content),
		Description: sourceDescription(content),
		Archive:     content.Payload,
	}
	return createThenActivate(createContext, retrier, shared.AssetKindCustomPage, migrator.destination, func(attemptContext context.Context) (platform.CreatedRecord, error) {
		return migrator.destination.CreateCustomPage(attemptContext, draft)
	})
}
