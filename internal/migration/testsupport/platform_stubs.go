package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	createdDefinitionIdentifierTemplateConstant = "pd-%d"
	createdDefinitionVersionConstant            = "1"
	migratedIdentifierSuffixConstant            = "-migrated"
	migratedRecordIdentifierTemplateConstant    = "record-%d"
)

// SourcePlatformStub serves a fixed process definition.
type SourcePlatformStub struct {
	Definition     platform.ProcessDefinition
	FetchError     error
	RequestedIDs   []string
	requestedMutex sync.Mutex
}

// FetchProcessDefinition records the request and returns the configured definition or error.
func (source *SourcePlatformStub) FetchProcessDefinition(_ context.Context, processDefinitionID string) (platform.ProcessDefinition, error) {
	source.requestedMutex.Lock()
	source.RequestedIDs = append(source.RequestedIDs, processDefinitionID)
	source.requestedMutex.Unlock()
	if source.FetchError != nil {
		return platform.ProcessDefinition{}, source.FetchError
	}
	return source.Definition, nil
}

// DestinationPlatformStub records process definition drafts and issues sequential identifiers.
// ActivationErrors are returned by successive activation calls before activation succeeds.
type DestinationPlatformStub struct {
	AccessError      error
	CreateError      error
	ActivationErrors []error
	Drafts           []platform.ProcessDefinitionDraft
	Activated        []string
	AccessChecks     int
	createdCount     int
	activationCalls  int
	recordingMutex   sync.Mutex
}

// VerifyAccess returns the configured access error.
func (destination *DestinationPlatformStub) VerifyAccess(context.Context) error {
	destination.recordingMutex.Lock()
	defer destination.recordingMutex.Unlock()
	destination.AccessChecks++
	return destination.AccessError
}

// CreateProcessDefinition records the draft and returns a new record.
func (destination *DestinationPlatformStub) CreateProcessDefinition(_ context.Context, draft platform.ProcessDefinitionDraft) (platform.CreatedRecord, error) {
	destination.recordingMutex.Lock()
	defer destination.recordingMutex.Unlock()
	destination.Drafts = append(destination.Drafts, draft)
	if destination.CreateError != nil {
		return platform.CreatedRecord{}, destination.CreateError
	}
	destination.createdCount++
	return platform.CreatedRecord{
		ID:      fmt.Sprintf(createdDefinitionIdentifierTemplateConstant, destination.createdCount),
		Name:    draft.Name,
		Version: createdDefinitionVersionConstant,
	}, nil
}

// ActivateProcessDefinition records the activation and returns the next scripted error, if any.
func (destination *DestinationPlatformStub) ActivateProcessDefinition(_ context.Context, created platform.CreatedRecord) (platform.CreatedRecord, error) {
	destination.recordingMutex.Lock()
	defer destination.recordingMutex.Unlock()
	destination.activationCalls++
	if destination.activationCalls <= len(destination.ActivationErrors) {
		return created, destination.ActivationErrors[destination.activationCalls-1]
	}
	destination.Activated = append(destination.Activated, created.ID)
	return created, nil
}

// AssetRunnerStub returns configured mappings and migrates everything else successfully,
// issuing a new destination record identifier for every migration.
type AssetRunnerStub struct {
	Mappings      map[shared.AssetKey]shared.MigrationMapping
	Migrated      []shared.AssetReference
	migratedMutex sync.Mutex
}

// Migrate records the reference and returns its configured mapping.
func (runner *AssetRunnerStub) Migrate(_ context.Context, reference shared.AssetReference) shared.MigrationMapping {
	runner.migratedMutex.Lock()
	runner.Migrated = append(runner.Migrated, reference)
	recordNumber := len(runner.Migrated)
	runner.migratedMutex.Unlock()

	if mapping, configured := runner.Mappings[reference.Key()]; configured {
		mapping.Reference = reference
		return mapping
	}
	return shared.MigrationMapping{
		Reference:           reference,
		NewID:               reference.SourceID + migratedIdentifierSuffixConstant,
		DestinationRecordID: fmt.Sprintf(migratedRecordIdentifierTemplateConstant, recordNumber),
		Status:              shared.MappingStatusSuccess,
		Attempts:            1,
	}
}

// FixedClock always reports the same instant.
type FixedClock struct {
	Instant time.Time
}

// Now returns the configured instant.
func (clock FixedClock) Now() time.Time {
	return clock.Instant
}
