package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	migratorMissingMessageConstant           = "migrator not configured"
	duplicateMigratorTemplateConstant        = "migrator for %s registered twice"
	unsupportedKindTemplateConstant          = "no migrator registered for asset kind %q"
	fetchStepErrorTemplateConstant           = "fetch failed: %v"
	transformStepErrorTemplateConstant       = "transform failed: %v"
	createStepErrorTemplateConstant          = "create failed: %v"
	assetMigrationStartedMessageConstant     = "Migrating asset"
	assetMigrationSucceededMessageConstant   = "Asset migrated"
	assetMigrationFailedMessageConstant      = "Asset migration failed"
	assetMigrationWarningMessageConstant     = "Asset migration warning"
	logFieldAssetConstant                    = "asset"
	logFieldAssetKindConstant                = "asset_kind"
	logFieldAssetNameConstant                = "asset_name"
	logFieldNewIdentifierConstant            = "new_id"
	logFieldNewVersionConstant               = "new_version"
	logFieldAttemptsConstant                 = "attempts"
	logFieldFailureCategoryConstant          = "failure_category"
	logFieldStatusConstant                   = "status"
	logFieldWarningConstant                  = "warning"
	unsupportedKindFieldNameConstant         = "kind"
	unsupportedKindStepErrorTemplateConstant = "dispatch failed: %v"
)

// ErrMigratorNotConfigured indicates a nil migrator was registered.
var ErrMigratorNotConfigured = errors.New(migratorMissingMessageConstant)

// RunnerDependencies captures collaborators required by Runner.
type RunnerDependencies struct {
	Migrators   []Migrator
	RetryPolicy RetryPolicy
	Logger      *zap.Logger
}

// Runner dispatches references to the migrator of their kind and isolates failures.
type Runner struct {
	migrators   map[shared.AssetKind]Migrator
	retryPolicy RetryPolicy
	logger      *zap.Logger
}

// NewRunner constructs a Runner with one migrator per kind.
func NewRunner(dependencies RunnerDependencies) (*Runner, error) {
	migrators := make(map[shared.AssetKind]Migrator, len(dependencies.Migrators))
	for _, migrator := range dependencies.Migrators {
		if migrator == nil {
			return nil, ErrMigratorNotConfigured
		}
		if _, exists := migrators[migrator.Kind()]; exists {
			return nil, fmt.Errorf(duplicateMigratorTemplateConstant, migrator.Kind())
		}
		migrators[migrator.Kind()] = migrator
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		migrators:   migrators,
		retryPolicy: dependencies.RetryPolicy.normalized(),
		logger:      logger,
	}, nil
}

// Migrate fetches, transforms and creates one asset. It never returns an error:
// every failure is recorded on the returned mapping. The fetched content is kept on the
// mapping as source artifacts, including when creation fails.
func (runner *Runner) Migrate(migrationContext context.Context, reference shared.AssetReference) shared.MigrationMapping {
	mapping := shared.MigrationMapping{Reference: reference}

	migrator, exists := runner.migrators[reference.Kind]
	if !exists {
		return runner.fail(reference.String(), mapping, platform.InvalidInputError{
			FieldName: unsupportedKindFieldNameConstant,
			Message:   fmt.Sprintf(unsupportedKindTemplateConstant, reference.Kind),
		}, unsupportedKindStepErrorTemplateConstant)
	}

	description := migrator.Describe(reference)
	runner.logger.Debug(
		assetMigrationStartedMessageConstant,
		zap.String(logFieldAssetConstant, description),
		zap.String(logFieldAssetKindConstant, string(reference.Kind)),
		zap.String(logFieldAssetNameConstant, reference.SourceID),
	)

	var content shared.AssetContent
	fetchAttempts, fetchError := runner.retryPolicy.Do(migrationContext, func(attemptContext context.Context) error {
		fetched, attemptError := migrator.Fetch(attemptContext, reference)
		if attemptError != nil {
			return attemptError
		}
		content = fetched
		return nil
	})
	mapping.Attempts += fetchAttempts
	if fetchError != nil {
		return runner.fail(description, mapping, fetchError, fetchStepErrorTemplateConstant)
	}
	mapping.Warnings = append(mapping.Warnings, content.Warnings...)
	mapping.SourceArtifacts = migrator.Snapshot(content)

	transformed, transformError := migrator.Transform(content)
	if transformError != nil {
		return runner.fail(description, mapping, transformError, transformStepErrorTemplateConstant)
	}

	retrier := NewStepRetrier(runner.retryPolicy)
	created, createError := migrator.Create(migrationContext, transformed, retrier)
	mapping.Attempts += retrier.Attempts()
	mapping.Warnings = append(mapping.Warnings, created.Warnings...)
	if createError != nil {
		mapping.DestinationRecordID = created.ID
		return runner.fail(description, mapping, createError, createStepErrorTemplateConstant)
	}

	mapping.Status = shared.MappingStatusSuccess
	mapping.NewID = newIdentifier(reference, transformed, created)
	mapping.NewVersion = created.Version
	mapping.DestinationRecordID = created.ID

	for _, warning := range mapping.Warnings {
		runner.logger.Warn(
			assetMigrationWarningMessageConstant,
			zap.String(logFieldAssetConstant, description),
			zap.String(logFieldWarningConstant, warning),
		)
	}
	runner.logger.Info(
		assetMigrationSucceededMessageConstant,
		zap.String(logFieldAssetConstant, description),
		zap.String(logFieldAssetKindConstant, string(reference.Kind)),
		zap.String(logFieldAssetNameConstant, reference.SourceID),
		zap.String(logFieldStatusConstant, string(mapping.Status)),
		zap.String(logFieldNewIdentifierConstant, mapping.NewID),
		zap.String(logFieldNewVersionConstant, mapping.NewVersion),
		zap.Int(logFieldAttemptsConstant, mapping.Attempts),
	)
	return mapping
}

// newIdentifier is the value workflow references use for the created asset.
// Themes are referenced by record identifier; every other kind by name.
func newIdentifier(reference shared.AssetReference, content shared.AssetContent, created CreatedAsset) string {
	if reference.Kind == shared.AssetKindTheme {
		return created.ID
	}
	for _, candidate := range []string{created.Name, content.Name, reference.SourceID} {
		if trimmed := strings.TrimSpace(candidate); len(trimmed) > 0 {
			return trimmed
		}
	}
	return ""
}

func (runner *Runner) fail(description string, mapping shared.MigrationMapping, cause error, messageTemplate string) shared.MigrationMapping {
	failed := mapping
	failed.Status = shared.MappingStatusFailed
	failed.FailureCategory = platform.Classify(cause)
	failed.Error = fmt.Sprintf(messageTemplate, cause)

	runner.logger.Warn(
		assetMigrationFailedMessageConstant,
		zap.String(logFieldAssetConstant, description),
		zap.String(logFieldAssetKindConstant, string(mapping.Reference.Kind)),
		zap.String(logFieldAssetNameConstant, mapping.Reference.SourceID),
		zap.String(logFieldStatusConstant, string(failed.Status)),
		zap.String(logFieldFailureCategoryConstant, string(failed.FailureCategory)),
		zap.Int(logFieldAttemptsConstant, failed.Attempts),
		zap.Error(cause),
	)
	return failed
}
