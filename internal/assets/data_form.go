package assets

import (
	"context"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	dataFormLabelConstant          = "data form"
	dataFormSnapshotSuffixConstant = ".json"
)

// DataFormSource fetches custom data form definitions.
type DataFormSource interface {
	FetchDataForm(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error)
}

// DataFormDestination creates and activates custom data forms.
type DataFormDestination interface {
	AssetActivator
	CreateDataForm(createContext context.Context, draft platform.DataFormDraft) (platform.CreatedRecord, error)
}

// DataFormMigrator copies custom data forms between environments.
type DataFormMigrator struct {
	source      DataFormSource
	destination DataFormDestination
}

// NewDataFormMigrator constructs a DataFormMigrator.
func NewDataFormMigrator(source DataFormSource, destination DataFormDestination) *DataFormMigrator {
	return &DataFormMigrator{source: source, destination: destination}
}

// Kind reports the data form asset kind.
func (migrator *DataFormMigrator) Kind() shared.AssetKind {
	return shared.AssetKindDataForm
}

// Describe renders the reference for logs.
func (migrator *DataFormMigrator) Describe(reference shared.AssetReference) string {
	return describeReference(dataFormLabelConstant, reference)
}

// Fetch loads the referenced form definition.
func (migrator *DataFormMigrator) Fetch(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	return migrator.source.FetchDataForm(fetchContext, reference)
}

// Transform returns the content unchanged.
func (migrator *DataFormMigrator) Transform(content shared.AssetContent) (shared.AssetContent, error) {
	return content, nil
}

// Snapshot keeps the fetched form definition as JSON.
func (migrator *DataFormMigrator) Snapshot(content shared.AssetContent) []shared.SourceArtifact {
	return []shared.SourceArtifact{{FileName: snapshotFileName(content, dataFormSnapshotSuffixConstant), Data: content.Payload}}
}

// Create saves and deploys the form in the destination environment.
func (migrator *DataFormMigrator) Create(createContext context.Context, content shared.AssetContent, retrier *StepRetrier) (CreatedAsset, error) {
	draft := platform.DataFormDraft{
		Name:        destinationName(content),
		Description: sourceDescription(content),
		Definition:  string(content.Payload),
	}
	return createThenActivate(createContext, retrier, shared.AssetKindDataForm, migrator.destination, func(attemptContext context.Context) (platform.CreatedRecord, error) {
		return migrator.destination.CreateDataForm(attemptContext, draft)
	})
}
