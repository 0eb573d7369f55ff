package assets

import (
	"context"
	"strings"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	descriptionDocumentFieldConstant = "description"
)

// Migrator fetches, transforms and recreates assets of one kind.
type Migrator interface {
	Kind() shared.AssetKind
	Describe(reference shared.AssetReference) string
	Fetch(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error)
	Transform(content shared.AssetContent) (shared.AssetContent, error)
	Create(createContext context.Context, content shared.AssetContent, retrier *StepRetrier) (CreatedAsset, error)
	Snapshot(content shared.AssetContent) []shared.SourceArtifact
}

// AssetActivator deploys records returned by the destination Create calls.
type AssetActivator interface {
	ActivateAsset(activateContext context.Context, kind shared.AssetKind, created platform.CreatedRecord) (platform.CreatedRecord, error)
}

// CreatedAsset identifies an asset recreated in the destination environment.
// ID is set as soon as the destination has a record, even when a later step fails.
type CreatedAsset struct {
	ID       string
	Name     string
	Version  string
	Metadata map[string]any
	Warnings []string
}

func createdAssetFromRecord(record platform.CreatedRecord) CreatedAsset {
	return CreatedAsset{
		ID:       record.ID,
		Name:     record.Name,
		Version:  record.Version,
		Metadata: record.Metadata,
	}
}

// createThenActivate retries the create request until the destination returns a record, then
// retries activation of that record alone.
func createThenActivate(createContext context.Context, retrier *StepRetrier, kind shared.AssetKind, activator AssetActivator, create func(context.Context) (platform.CreatedRecord, error)) (CreatedAsset, error) {
	var record platform.CreatedRecord
	createError := retrier.Do(createContext, func(attemptContext context.Context) error {
		created, attemptError := create(attemptContext)
		if attemptError != nil {
			return attemptError
		}
		record = created
		return nil
	})
	if createError != nil {
		return CreatedAsset{}, createError
	}

	return activateRecord(createContext, retrier, kind, activator, record)
}

// activateRecord retries activation of an existing record. On failure the record identity is
// still returned so the orphaned destination record can be reported.
func activateRecord(activateContext context.Context, retrier *StepRetrier, kind shared.AssetKind, activator AssetActivator, record platform.CreatedRecord) (CreatedAsset, error) {
	activated := record
	activationError := retrier.Do(activateContext, func(attemptContext context.Context) error {
		result, attemptError := activator.ActivateAsset(attemptContext, kind, record)
		if attemptError != nil {
			return attemptError
		}
		activated = result
		return nil
	})
	if activationError != nil {
		return createdAssetFromRecord(record), activationError
	}
	return createdAssetFromRecord(activated), nil
}

// describeReference renders a reference with the kind label used in logs.
func describeReference(label string, reference shared.AssetReference) string {
	return label + " " + reference.String()
}

// sourceDescription returns the description recorded on the source asset.
func sourceDescription(content shared.AssetContent) string {
	description, isText := content.Document[descriptionDocumentFieldConstant].(string)
	if !isText {
		return ""
	}
	return strings.TrimSpace(description)
}

// snapshotFileName builds the on-disk name of a source artifact.
func snapshotFileName(content shared.AssetContent, extension string) string {
	return destinationName(content) + extension
}

// destinationName keeps the source name so workflow references stay readable.
func destinationName(content shared.AssetContent) string {
	if len(strings.TrimSpace(content.Name)) > 0 {
		return strings.TrimSpace(content.Name)
	}
	return content.Reference.SourceID
}
