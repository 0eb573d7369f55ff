package assets

import (
	"context"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	cloudFunctionLabelConstant          = "cloud function"
	cloudFunctionSnapshotSuffixConstant = ".py"
)

// CloudFunctionSource fetches cloud function scripts.
type CloudFunctionSource interface {
	FetchCloudFunction(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error)
}

// CloudFunctionDestination creates and activates cloud functions.
type CloudFunctionDestination interface {
	AssetActivator
	CreateCloudFunction(createContext context.Context, draft platform.CloudFunctionDraft) (platform.CreatedRecord, error)
}

// CloudFunctionMigrator copies cloud function scripts between environments.
type CloudFunctionMigrator struct {
	source       CloudFunctionSource
	destination  CloudFunctionDestination
	functionType string
}

// NewCloudFunctionMigrator constructs a CloudFunctionMigrator. An empty function type uses the platform default.
func NewCloudFunctionMigrator(source CloudFunctionSource, destination CloudFunctionDestination, functionType string) *CloudFunctionMigrator {
	return &CloudFunctionMigrator{source: source, destination: destination, functionType: functionType}
}

// Kind reports the cloud function asset kind.
func (migrator *CloudFunctionMigrator) Kind() shared.AssetKind {
	return shared.AssetKindCloudFunction
}

// Describe renders the reference for logs.
func (migrator *CloudFunctionMigrator) Describe(reference shared.AssetReference) string {
	return describeReference(cloudFunctionLabelConstant, reference)
}

// Fetch loads the referenced script from the source environment.
func (migrator *CloudFunctionMigrator) Fetch(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	return migrator.source.FetchCloudFunction(fetchContext, reference)
}

// Transform returns the content unchanged; scripts are portable.
func (migrator *CloudFunctionMigrator) Transform(content shared.AssetContent) (shared.AssetContent, error) {
	return content, nil
}

// Snapshot keeps the fetched script as a Python file.
func (migrator *CloudFunctionMigrator) Snapshot(content shared.AssetContent) []shared.SourceArtifact {
	return []shared.SourceArtifact{{FileName: snapshotFileName(content, cloudFunctionSnapshotSuffixConstant), Data: content.Payload}}
}

// Create registers the script in the destination environment and activates it.
func (migrator *CloudFunctionMigrator) Create(createContext context.Context, content shared.AssetContent, retrier *StepRetrier) (CreatedAsset, error) {
	draft := platform.CloudFunctionDraft{
		Name:        destinationName(content),
		Description: sourceDescription(content),
		Type:        migrator.functionType,
		Script:      string(content.Payload),
	}
	return createThenActivate(createContext, retrier, shared.AssetKindCloudFunction, migrator.destination, func(attemptContext context.Context) (platform.CreatedRecord, error) {
		return migrator.destination.CreateCloudFunction(attemptContext, draft)
	})
}
