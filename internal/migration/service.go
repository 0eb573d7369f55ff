package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/trustx-migrate/internal/assets"
	"github.com/temirov/trustx-migrate/internal/bpmn"
	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/report"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	sourcePlatformMissingMessageConstant      = "source platform not configured"
	destinationPlatformMissingMessageConstant = "destination platform not configured"
	assetRunnerMissingMessageConstant         = "asset runner not configured"
	sourceDefinitionFieldNameConstant         = "source_process_definition_id"
	destinationNameFieldNameConstant          = "destination_process_definition_name"
	requiredValueMessageConstant              = "value required"
	destinationUnavailableTemplateConstant    = "all %d asset migrations failed authentication against the destination"
	mappingRecordFailedMessageConstant        = "Unable to record asset mapping"
	phaseStartedMessageConstant               = "Migration phase started"
	phaseCompletedMessageConstant             = "Migration phase completed"
	phaseFailedMessageConstant                = "Migration phase failed"
	runCompletedMessageConstant               = "Migration run completed"
	referencesExtractedMessageConstant        = "Workflow references extracted"
	processDefinitionCreatedMessageConstant   = "Destination process definition created"
	referenceFlaggedMessageConstant           = "Workflow reference left unchanged"
	tracerNameConstant                        = "github.com/temirov/trustx-migrate/internal/migration"
	runSpanNameConstant                       = "migration.run"
	logFieldRunIdentifierConstant             = "run_id"
	logFieldPhaseConstant                     = "phase"
	logFieldReferenceCountConstant            = "references"
	logFieldMappingCountConstant              = "mappings"
	logFieldFailedCountConstant               = "failed"
	logFieldOutcomeConstant                   = "outcome"
	logFieldSummaryConstant                   = "summary"
	logFieldAssetConstant                     = "asset"
	logFieldReasonConstant                    = "reason"
	logFieldProcessDefinitionConstant         = "process_definition_id"
	attributeRunIdentifierConstant            = "migration.run_id"
	attributeSourceDefinitionConstant         = "migration.source_process_definition_id"
	attributeReferenceCountConstant           = "migration.references"
	attributeFailedCountConstant              = "migration.failed_assets"
	attributeOutcomeConstant                  = "migration.outcome"
	minimumWorkerCountConstant                = 1
)

var (
	errSourcePlatformMissing      = errors.New(sourcePlatformMissingMessageConstant)
	errDestinationPlatformMissing = errors.New(destinationPlatformMissingMessageConstant)
	errAssetRunnerMissing         = errors.New(assetRunnerMissingMessageConstant)
)

// SourcePlatform reads process definitions from the source environment.
type SourcePlatform interface {
	FetchProcessDefinition(fetchContext context.Context, processDefinitionID string) (platform.ProcessDefinition, error)
}

// DestinationPlatform creates process definitions in the destination environment.
type DestinationPlatform interface {
	VerifyAccess(accessContext context.Context) error
	CreateProcessDefinition(createContext context.Context, draft platform.ProcessDefinitionDraft) (platform.CreatedRecord, error)
	ActivateProcessDefinition(activateContext context.Context, created platform.CreatedRecord) (platform.CreatedRecord, error)
}

// AssetRunner migrates one asset and records failures on the mapping.
type AssetRunner interface {
	Migrate(migrationContext context.Context, reference shared.AssetReference) shared.MigrationMapping
}

// RunIdentifierGenerator produces identifiers for runs.
type RunIdentifierGenerator func() string

// ServiceDependencies captures collaborators required by Service.
type ServiceDependencies struct {
	Source                 SourcePlatform
	Destination            DestinationPlatform
	Runner                 AssetRunner
	RetryPolicy            assets.RetryPolicy
	Clock                  shared.Clock
	Tracer                 trace.Tracer
	RunIdentifierGenerator RunIdentifierGenerator
	Logger                 *zap.Logger
}

// Options are the immutable inputs of one run.
type Options struct {
	SourceProcessDefinitionID string
	DestinationName           string
	Description               string
	ServerType                string
	ProcessDefinitionType     string
	Workers                   int
}

// Result carries the report and the documents produced by a run.
type Result struct {
	Report            report.MigrationReport
	SourceDocument    []byte
	RewrittenDocument []byte
}

// Service runs migrations.
type Service struct {
	source                 SourcePlatform
	destination            DestinationPlatform
	runner                 AssetRunner
	retryPolicy            assets.RetryPolicy
	clock                  shared.Clock
	tracer                 trace.Tracer
	runIdentifierGenerator RunIdentifierGenerator
	extractor              *bpmn.ReferenceExtractor
	logger                 *zap.Logger
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Source == nil {
		return nil, errSourcePlatformMissing
	}
	if dependencies.Destination == nil {
		return nil, errDestinationPlatformMissing
	}
	if dependencies.Runner == nil {
		return nil, errAssetRunnerMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	tracer := dependencies.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerNameConstant)
	}
	runIdentifierGenerator := dependencies.RunIdentifierGenerator
	if runIdentifierGenerator == nil {
		runIdentifierGenerator = uuid.NewString
	}

	return &Service{
		source:                 dependencies.Source,
		destination:            dependencies.Destination,
		runner:                 dependencies.Runner,
		retryPolicy:            dependencies.RetryPolicy,
		clock:                  clock,
		tracer:                 tracer,
		runIdentifierGenerator: runIdentifierGenerator,
		extractor:              bpmn.NewReferenceExtractor(logger),
		logger:                 logger,
	}, nil
}

type runState struct {
	options        Options
	result         Result
	definition     platform.ProcessDefinition
	document       *bpmn.Document
	references     []shared.AssetReference
	mappings       *shared.MappingTable
	rewrittenTheme string
}

// Run executes every phase and always returns a populated report.
// The error is a PhaseError when a phase failed outright, or an InvalidInputError for unusable options.
func (service *Service) Run(runContext context.Context, options Options) (Result, error) {
	state := &runState{options: options, mappings: shared.NewMappingTable()}
	state.result.Report = report.MigrationReport{
		RunID:                            service.runIdentifierGenerator(),
		SourceProcessDefinitionID:        strings.TrimSpace(options.SourceProcessDefinitionID),
		DestinationProcessDefinitionName: strings.TrimSpace(options.DestinationName),
		StartedAt:                        service.clock.Now(),
		FinalPhase:                       string(PhaseInit),
		Mappings:                         []shared.MigrationMapping{},
	}

	spanContext, runSpan := service.tracer.Start(runContext, runSpanNameConstant, trace.WithAttributes(
		attribute.String(attributeRunIdentifierConstant, state.result.Report.RunID),
		attribute.String(attributeSourceDefinitionConstant, state.result.Report.SourceProcessDefinitionID),
	))
	defer runSpan.End()

	runError := service.runPhases(spanContext, state)

	migrationReport := &state.result.Report
	migrationReport.Mappings = state.mappings.Ordered(state.references)
	migrationReport.FinishedAt = service.clock.Now()
	if runError == nil {
		migrationReport.FinalPhase = string(PhaseDone)
	} else {
		migrationReport.FinalPhase = string(PhaseFailed)
		var phaseError PhaseError
		if errors.As(runError, &phaseError) {
			migrationReport.AbortPhase = string(phaseError.Phase)
		} else {
			migrationReport.AbortPhase = string(PhaseInit)
		}
		migrationReport.AbortReason = rootCause(runError).Error()
		runSpan.RecordError(runError)
		runSpan.SetStatus(codes.Error, migrationReport.AbortReason)
	}

	runSpan.SetAttributes(
		attribute.Int(attributeReferenceCountConstant, len(state.references)),
		attribute.Int(attributeFailedCountConstant, len(migrationReport.FailedMappings())),
		attribute.String(attributeOutcomeConstant, string(migrationReport.Outcome())),
	)
	service.logger.Info(
		runCompletedMessageConstant,
		zap.String(logFieldRunIdentifierConstant, migrationReport.RunID),
		zap.String(logFieldOutcomeConstant, string(migrationReport.Outcome())),
		zap.String(logFieldSummaryConstant, migrationReport.Summary()),
		zap.Int(logFieldMappingCountConstant, len(migrationReport.Mappings)),
		zap.Int(logFieldFailedCountConstant, len(migrationReport.FailedMappings())),
	)
	return state.result, runError
}

func (service *Service) runPhases(runContext context.Context, state *runState) error {
	if validationError := validateOptions(state.options); validationError != nil {
		return validationError
	}

	phases := []struct {
		phase   Phase
		execute func(context.Context, *runState) error
	}{
		{phase: PhaseFetchSourceDocument, execute: service.fetchSourceDocument},
		{phase: PhaseExtractReferences, execute: service.extractReferences},
		{phase: PhaseMigrateAssets, execute: service.migrateAssets},
		{phase: PhaseRewriteDocument, execute: service.rewriteDocument},
		{phase: PhaseCreateDestinationDefinition, execute: service.createDestinationDefinition},
	}

	for _, step := range phases {
		if phaseError := service.runPhase(runContext, state, step.phase, step.execute); phaseError != nil {
			return phaseError
		}
	}
	return nil
}

func (service *Service) runPhase(runContext context.Context, state *runState, phase Phase, execute func(context.Context, *runState) error) error {
	state.result.Report.FinalPhase = string(phase)
	phaseContext, phaseSpan := service.tracer.Start(runContext, string(phase))
	defer phaseSpan.End()

	service.logger.Info(
		phaseStartedMessageConstant,
		zap.String(logFieldRunIdentifierConstant, state.result.Report.RunID),
		zap.String(logFieldPhaseConstant, string(phase)),
	)

	if executeError := execute(phaseContext, state); executeError != nil {
		phaseSpan.RecordError(executeError)
		phaseSpan.SetStatus(codes.Error, executeError.Error())
		service.logger.Error(
			phaseFailedMessageConstant,
			zap.String(logFieldRunIdentifierConstant, state.result.Report.RunID),
			zap.String(logFieldPhaseConstant, string(phase)),
			zap.Error(executeError),
		)
		return PhaseError{Phase: phase, Cause: executeError}
	}

	phaseSpan.SetStatus(codes.Ok, "")
	service.logger.Info(
		phaseCompletedMessageConstant,
		zap.String(logFieldRunIdentifierConstant, state.result.Report.RunID),
		zap.String(logFieldPhaseConstant, string(phase)),
	)
	return nil
}

func (service *Service) fetchSourceDocument(phaseContext context.Context, state *runState) error {
	_, fetchError := service.retryPolicy.Do(phaseContext, func(attemptContext context.Context) error {
		definition, attemptError := service.source.FetchProcessDefinition(attemptContext, state.options.SourceProcessDefinitionID)
		if attemptError != nil {
			return attemptError
		}
		state.definition = definition
		return nil
	})
	if fetchError != nil {
		return fetchError
	}
	state.result.SourceDocument = state.definition.Document

	document, parseError := bpmn.Parse(state.definition.Document)
	if parseError != nil {
		return parseError
	}
	state.document = document
	return nil
}

func (service *Service) extractReferences(_ context.Context, state *runState) error {
	extraction := service.extractor.Extract(state.document)
	state.references = append(state.references, extraction.References...)
	if themeID := strings.TrimSpace(state.definition.ThemeID); len(themeID) > 0 {
		state.references = append(state.references, shared.AssetReference{Kind: shared.AssetKindTheme, SourceID: themeID})
	}

	state.result.Report.Watchlists = extraction.Watchlists
	state.result.Report.ExtractionWarnings = extraction.Warnings
	service.logger.Info(referencesExtractedMessageConstant, zap.Int(logFieldReferenceCountConstant, len(state.references)))
	return nil
}

func (service *Service) migrateAssets(phaseContext context.Context, state *runState) error {
	if len(state.references) == 0 {
		return nil
	}

	_, accessError := service.retryPolicy.Do(phaseContext, service.destination.VerifyAccess)
	if accessError != nil {
		return accessError
	}

	workerCount := state.options.Workers
	if workerCount < minimumWorkerCountConstant {
		workerCount = minimumWorkerCountConstant
	}

	var workers errgroup.Group
	workers.SetLimit(workerCount)
	for _, reference := range state.references {
		workers.Go(func() error {
			mapping := service.runner.Migrate(phaseContext, reference)
			if recordError := state.mappings.Record(mapping); recordError != nil {
				service.logger.Error(
					mappingRecordFailedMessageConstant,
					zap.String(logFieldAssetConstant, reference.String()),
					zap.Error(recordError),
				)
			}
			return nil
		})
	}
	_ = workers.Wait()

	mappings := state.mappings.Ordered(state.references)
	for _, mapping := range mappings {
		if mapping.Succeeded() || mapping.FailureCategory != shared.FailureCategoryAuth {
			return nil
		}
	}
	return platform.AuthError{
		Environment: platform.EnvironmentNameDestination,
		Operation:   platform.OperationName(PhaseMigrateAssets),
		Cause:       fmt.Errorf(destinationUnavailableTemplateConstant, len(mappings)),
	}
}

func (service *Service) rewriteDocument(_ context.Context, state *runState) error {
	rewrite := bpmn.Rewrite(state.document, state.mappings)
	state.result.Report.RewriteFlags = rewrite.Flags
	for _, flag := range rewrite.Flags {
		service.logger.Warn(
			referenceFlaggedMessageConstant,
			zap.String(logFieldAssetConstant, flag.Reference.String()),
			zap.String(logFieldReasonConstant, string(flag.Reason)),
		)
	}

	serialized, serializeError := rewrite.Document.Serialize()
	if serializeError != nil {
		return serializeError
	}
	state.result.RewrittenDocument = serialized

	if themeID := strings.TrimSpace(state.definition.ThemeID); len(themeID) > 0 {
		if mapping, mapped := state.mappings.Lookup(shared.AssetKey{Kind: shared.AssetKindTheme, SourceID: themeID}); mapped && mapping.Succeeded() {
			state.rewrittenTheme = mapping.NewID
		}
	}
	return nil
}

func (service *Service) createDestinationDefinition(phaseContext context.Context, state *runState) error {
	draft := platform.ProcessDefinitionDraft{
		Name:                  state.options.DestinationName,
		Description:           state.options.Description,
		ServerType:            state.options.ServerType,
		ProcessDefinitionType: state.options.ProcessDefinitionType,
		Document:              state.result.RewrittenDocument,
		ThemeID:               state.rewrittenTheme,
	}

	retrier := assets.NewStepRetrier(service.retryPolicy)
	var created platform.CreatedRecord
	createError := retrier.Do(phaseContext, func(attemptContext context.Context) error {
		record, attemptError := service.destination.CreateProcessDefinition(attemptContext, draft)
		if attemptError != nil {
			return attemptError
		}
		created = record
		return nil
	})

	processDefinition := &state.result.Report.ProcessDefinition
	processDefinition.ThemeID = state.rewrittenTheme
	if createError != nil {
		processDefinition.Error = createError.Error()
		return createError
	}

	activated := created
	activationError := retrier.Do(phaseContext, func(attemptContext context.Context) error {
		record, attemptError := service.destination.ActivateProcessDefinition(attemptContext, created)
		if attemptError != nil {
			return attemptError
		}
		activated = record
		return nil
	})
	if activationError != nil {
		processDefinition.ID = created.ID
		processDefinition.Name = created.Name
		processDefinition.Error = activationError.Error()
		return activationError
	}
	created = activated

	processDefinition.Created = true
	processDefinition.ID = created.ID
	processDefinition.Name = created.Name
	processDefinition.Version = created.Version
	service.logger.Info(processDefinitionCreatedMessageConstant, zap.String(logFieldProcessDefinitionConstant, created.ID))
	return nil
}

func validateOptions(options Options) error {
	if len(strings.TrimSpace(options.SourceProcessDefinitionID)) == 0 {
		return platform.InvalidInputError{FieldName: sourceDefinitionFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.DestinationName)) == 0 {
		return platform.InvalidInputError{FieldName: destinationNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}

func rootCause(err error) error {
	var phaseError PhaseError
	if errors.As(err, &phaseError) && phaseError.Cause != nil {
		return phaseError.Cause
	}
	return err
}
