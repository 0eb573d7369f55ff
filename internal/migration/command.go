package migration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/assets"
	"github.com/temirov/trustx-migrate/internal/auth"
	"github.com/temirov/trustx-migrate/internal/persistence"
	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/report"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	commandUseConstant                       = "migrate"
	commandShortDescriptionConstant          = "Copy a process definition and its assets between environments"
	commandLongDescriptionConstant           = "migrate copies a process definition from the source environment to the destination environment, recreating the cloud functions, data forms, custom pages and theme it references and rewriting the workflow to point at the new assets."
	unexpectedArgumentsErrorMessageConstant  = "migrate does not accept positional arguments"
	sourceDefinitionFlagNameConstant         = "source-process-definition"
	sourceDefinitionFlagUsageConstant        = "Identifier of the source process definition"
	destinationNameFlagNameConstant          = "destination-name"
	destinationNameFlagUsageConstant         = "Name of the process definition created in the destination"
	descriptionFlagNameConstant              = "description"
	descriptionFlagUsageConstant             = "Description of the destination process definition"
	workersFlagNameConstant                  = "workers"
	workersFlagUsageConstant                 = "Number of assets migrated concurrently"
	outputDirectoryFlagNameConstant          = "output-dir"
	outputDirectoryFlagUsageConstant         = "Directory receiving the migration artifacts"
	keepOutputFlagNameConstant               = "keep-output"
	keepOutputFlagUsageConstant              = "Keep earlier contents of the output directory"
	sourceBaseURLFlagNameConstant            = "source-base-url"
	sourceBaseURLFlagUsageConstant           = "Base URL of the source environment"
	destinationBaseURLFlagNameConstant       = "destination-base-url"
	destinationBaseURLFlagUsageConstant      = "Base URL of the destination environment"
	sourceAPIKeyFlagNameConstant             = "source-api-key-source"
	sourceAPIKeyFlagUsageConstant            = "Source API key declaration (env:NAME or file:/path)"
	destinationAPIKeyFlagNameConstant        = "destination-api-key-source"
	destinationAPIKeyFlagUsageConstant       = "Destination API key declaration (env:NAME or file:/path)"
	traceFlagNameConstant                    = "trace"
	traceFlagUsageConstant                   = "Write phase spans to the configured trace output"
	clientCreationErrorTemplateConstant      = "unable to construct %s client: %w"
	tracerCreationErrorTemplateConstant      = "unable to initialize tracing: %w"
	outputPreparationErrorTemplateConstant   = "unable to prepare output directory: %w"
	persistenceErrorTemplateConstant         = "unable to persist migration artifacts: %w"
	summaryWriteErrorTemplateConstant        = "unable to write migration summary: %w"
	migrationIncompleteMessageConstant       = "migration incomplete"
	migrationIncompleteErrorTemplateConstant = "%w: %s"
	tracerShutdownFailedMessageConstant      = "Unable to flush trace spans"
)

// ErrMigrationIncomplete indicates the run finished with failed assets or aborted.
var ErrMigrationIncomplete = errors.New(migrationIncompleteMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current migrate configuration.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider         LoggerProvider
	ConfigurationProvider  ConfigurationProvider
	HTTPClient             platform.HTTPClient
	KeyResolver            auth.APIKeyResolver
	FileSystem             afs.Service
	Clock                  shared.Clock
	RunIdentifierGenerator RunIdentifierGenerator
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          builder.runMigrate,
	}

	command.Flags().String(sourceDefinitionFlagNameConstant, "", sourceDefinitionFlagUsageConstant)
	command.Flags().String(destinationNameFlagNameConstant, "", destinationNameFlagUsageConstant)
	command.Flags().String(descriptionFlagNameConstant, "", descriptionFlagUsageConstant)
	command.Flags().Int(workersFlagNameConstant, 0, workersFlagUsageConstant)
	command.Flags().String(outputDirectoryFlagNameConstant, "", outputDirectoryFlagUsageConstant)
	command.Flags().Bool(keepOutputFlagNameConstant, false, keepOutputFlagUsageConstant)
	command.Flags().String(sourceBaseURLFlagNameConstant, "", sourceBaseURLFlagUsageConstant)
	command.Flags().String(destinationBaseURLFlagNameConstant, "", destinationBaseURLFlagUsageConstant)
	command.Flags().String(sourceAPIKeyFlagNameConstant, "", sourceAPIKeyFlagUsageConstant)
	command.Flags().String(destinationAPIKeyFlagNameConstant, "", destinationAPIKeyFlagUsageConstant)
	command.Flags().Bool(traceFlagNameConstant, false, traceFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsErrorMessageConstant)
	}

	configuration, configurationError := builder.parseConfiguration(command)
	if configurationError != nil {
		return configurationError
	}

	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}
	logger := builder.resolveLogger()

	tracer, shutdownTracer, tracerError := NewTracer(commandContext, configuration.Tracing, command.ErrOrStderr())
	if tracerError != nil {
		return fmt.Errorf(tracerCreationErrorTemplateConstant, tracerError)
	}
	defer func() {
		if shutdownError := shutdownTracer(context.Background()); shutdownError != nil {
			logger.Warn(tracerShutdownFailedMessageConstant, zap.Error(shutdownError))
		}
	}()

	writer, writerError := persistence.NewWriter(builder.resolveFileSystem(), logger)
	if writerError != nil {
		return writerError
	}
	outputURL, prepareError := writer.Prepare(commandContext, configuration.OutputDirectory, configuration.CleanOutput)
	if prepareError != nil {
		return fmt.Errorf(outputPreparationErrorTemplateConstant, prepareError)
	}

	service, serviceError := builder.buildService(configuration, tracer, logger)
	if serviceError != nil {
		return serviceError
	}

	result, runError := service.Run(commandContext, configuration.Options())

	_, persistError := writer.Persist(commandContext, outputURL, persistence.Artifacts{
		SourceProcessDefinitionID: configuration.Source.ProcessDefinitionID,
		SourceDocument:            result.SourceDocument,
		DestinationName:           configuration.Destination.ProcessDefinitionName,
		RewrittenDocument:         result.RewrittenDocument,
		Report:                    result.Report,
	})
	if persistError != nil {
		return fmt.Errorf(persistenceErrorTemplateConstant, persistError)
	}

	summary, renderError := report.RenderSummary(result.Report)
	if renderError != nil {
		return renderError
	}
	if _, writeError := command.OutOrStdout().Write(summary); writeError != nil {
		return fmt.Errorf(summaryWriteErrorTemplateConstant, writeError)
	}

	if runError != nil {
		return runError
	}
	if result.Report.Outcome() != report.OutcomeFullyMigrated {
		return fmt.Errorf(migrationIncompleteErrorTemplateConstant, ErrMigrationIncomplete, result.Report.Summary())
	}
	return nil
}

func (builder *CommandBuilder) buildService(configuration Configuration, tracer trace.Tracer, logger *zap.Logger) (*Service, error) {
	httpClient := builder.resolveHTTPClient(configuration)
	issuer, issuerError := auth.NewIssuer(auth.IssuerDependencies{
		HTTPClient:     httpClient,
		KeyResolver:    builder.resolveKeyResolver(),
		RequestTimeout: configuration.RequestTimeout,
		Logger:         logger,
	})
	if issuerError != nil {
		return nil, issuerError
	}

	sourceClient, sourceError := platform.NewClient(platform.ClientDependencies{
		Environment: platform.Environment{
			Name:         platform.EnvironmentNameSource,
			BaseURL:      configuration.Source.BaseURL,
			APIKeySource: configuration.Source.APIKeySource,
		},
		HTTPClient:     httpClient,
		TokenSource:    issuer,
		RequestTimeout: configuration.RequestTimeout,
		Logger:         logger,
	})
	if sourceError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, platform.EnvironmentNameSource, sourceError)
	}

	destinationClient, destinationError := platform.NewClient(platform.ClientDependencies{
		Environment: platform.Environment{
			Name:         platform.EnvironmentNameDestination,
			BaseURL:      configuration.Destination.BaseURL,
			APIKeySource: configuration.Destination.APIKeySource,
		},
		HTTPClient:     httpClient,
		TokenSource:    issuer,
		RequestTimeout: configuration.RequestTimeout,
		Logger:         logger,
	})
	if destinationError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, platform.EnvironmentNameDestination, destinationError)
	}

	runner, runnerError := assets.NewRunner(assets.RunnerDependencies{
		Migrators: []assets.Migrator{
			assets.NewCloudFunctionMigrator(sourceClient, destinationClient, configuration.Destination.CloudFunctionType),
			assets.NewDataFormMigrator(sourceClient, destinationClient),
			assets.NewCustomPageMigrator(sourceClient, destinationClient),
			assets.NewThemeMigrator(sourceClient, destinationClient),
		},
		RetryPolicy: configuration.RetryPolicy(),
		Logger:      logger,
	})
	if runnerError != nil {
		return nil, runnerError
	}

	return NewService(ServiceDependencies{
		Source:                 sourceClient,
		Destination:            destinationClient,
		Runner:                 runner,
		RetryPolicy:            configuration.RetryPolicy(),
		Clock:                  builder.Clock,
		Tracer:                 tracer,
		RunIdentifierGenerator: builder.RunIdentifierGenerator,
		Logger:                 logger,
	})
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command) (Configuration, error) {
	configuration := builder.resolveConfiguration()

	stringOverrides := []struct {
		flagName string
		target   *string
	}{
		{flagName: sourceDefinitionFlagNameConstant, target: &configuration.Source.ProcessDefinitionID},
		{flagName: destinationNameFlagNameConstant, target: &configuration.Destination.ProcessDefinitionName},
		{flagName: descriptionFlagNameConstant, target: &configuration.Destination.Description},
		{flagName: outputDirectoryFlagNameConstant, target: &configuration.OutputDirectory},
		{flagName: sourceBaseURLFlagNameConstant, target: &configuration.Source.BaseURL},
		{flagName: destinationBaseURLFlagNameConstant, target: &configuration.Destination.BaseURL},
		{flagName: sourceAPIKeyFlagNameConstant, target: &configuration.Source.APIKeySource},
		{flagName: destinationAPIKeyFlagNameConstant, target: &configuration.Destination.APIKeySource},
	}
	for _, override := range stringOverrides {
		flagValue, flagError := command.Flags().GetString(override.flagName)
		if flagError != nil {
			return Configuration{}, flagError
		}
		*override.target = selectStringValue(flagValue, *override.target)
	}

	if command.Flags().Changed(workersFlagNameConstant) {
		workerCount, workersError := command.Flags().GetInt(workersFlagNameConstant)
		if workersError != nil {
			return Configuration{}, workersError
		}
		configuration.Workers = workerCount
	}
	if command.Flags().Changed(keepOutputFlagNameConstant) {
		keepOutput, keepOutputError := command.Flags().GetBool(keepOutputFlagNameConstant)
		if keepOutputError != nil {
			return Configuration{}, keepOutputError
		}
		configuration.CleanOutput = !keepOutput
	}
	if command.Flags().Changed(traceFlagNameConstant) {
		traceEnabled, traceError := command.Flags().GetBool(traceFlagNameConstant)
		if traceError != nil {
			return Configuration{}, traceError
		}
		configuration.Tracing.Enabled = traceEnabled
	}

	sanitized := configuration.Sanitize()
	if validationError := sanitized.Validate(); validationError != nil {
		return Configuration{}, validationError
	}
	return sanitized, nil
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return DefaultConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveHTTPClient(configuration Configuration) platform.HTTPClient {
	if builder.HTTPClient != nil {
		return builder.HTTPClient
	}
	return &http.Client{Timeout: configuration.RequestTimeout}
}

func (builder *CommandBuilder) resolveKeyResolver() auth.APIKeyResolver {
	if builder.KeyResolver != nil {
		return builder.KeyResolver
	}
	return auth.NewKeyResolver(nil, nil)
}

func (builder *CommandBuilder) resolveFileSystem() afs.Service {
	if builder.FileSystem != nil {
		return builder.FileSystem
	}
	return afs.New()
}

func selectStringValue(flagValue string, configurationValue string) string {
	trimmedFlagValue := strings.TrimSpace(flagValue)
	if len(trimmedFlagValue) > 0 {
		return trimmedFlagValue
	}
	return configurationValue
}
