package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/temirov/trustx-migrate/internal/assets"
)

const (
	defaultSourceAPIKeySourceConstant      = "env:TRUSTX_SOURCE_API_KEY"
	defaultDestinationAPIKeySourceConstant = "env:TRUSTX_DEST_API_KEY"
	defaultServerTypeConstant              = "P1"
	defaultProcessDefinitionTypeConstant   = "VERIFICATION"
	defaultCloudFunctionTypeConstant       = "PYTHON39V1"
	defaultOutputDirectoryConstant         = "output"
	defaultWorkerCountConstant             = 4
	defaultRequestTimeoutConstant          = 30 * time.Second
	sourceBaseURLKeyConstant               = "source.base_url"
	sourceAPIKeySourceKeyConstant          = "source.api_key_source"
	sourceProcessDefinitionKeyConstant     = "source.process_definition_id"
	destinationBaseURLKeyConstant          = "destination.base_url"
	destinationAPIKeySourceKeyConstant     = "destination.api_key_source"
	destinationNameKeyConstant             = "destination.process_definition_name"
	destinationDescriptionKeyConstant      = "destination.description"
	destinationServerTypeKeyConstant       = "destination.server_type"
	destinationDefinitionTypeKeyConstant   = "destination.process_definition_type"
	destinationFunctionTypeKeyConstant     = "destination.cloud_function_type"
	outputDirectoryKeyConstant             = "output_dir"
	cleanOutputKeyConstant                 = "clean_output"
	workersKeyConstant                     = "workers"
	requestTimeoutKeyConstant              = "request_timeout"
	retryMaxAttemptsKeyConstant            = "retry.max_attempts"
	retryInitialIntervalKeyConstant        = "retry.initial_interval"
	retryMaxIntervalKeyConstant            = "retry.max_interval"
	tracingEnabledKeyConstant              = "tracing.enabled"
	tracingOutputFileKeyConstant           = "tracing.output_file"
	configurationKeyTemplateConstant       = "%s.%s"
	missingConfigurationTemplateConstant   = "missing required configuration: %s"
	invalidConfigurationTemplateConstant   = "invalid configuration %s: %s"
	missingConfigurationSeparatorConstant  = ", "
	positiveValueRequiredMessageConstant   = "must be positive"
	configurationErrorSeparatorConstant    = "; "
)

// SourceConfiguration describes the environment the process definition is copied from.
type SourceConfiguration struct {
	BaseURL             string `mapstructure:"base_url"`
	APIKeySource        string `mapstructure:"api_key_source"`
	ProcessDefinitionID string `mapstructure:"process_definition_id"`
}

// DestinationConfiguration describes the environment the process definition is copied to.
type DestinationConfiguration struct {
	BaseURL               string `mapstructure:"base_url"`
	APIKeySource          string `mapstructure:"api_key_source"`
	ProcessDefinitionName string `mapstructure:"process_definition_name"`
	Description           string `mapstructure:"description"`
	ServerType            string `mapstructure:"server_type"`
	ProcessDefinitionType string `mapstructure:"process_definition_type"`
	CloudFunctionType     string `mapstructure:"cloud_function_type"`
}

// RetryConfiguration bounds retries of transient failures.
type RetryConfiguration struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// TracingConfiguration enables phase spans written by the stdout exporter.
type TracingConfiguration struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputFile string `mapstructure:"output_file"`
}

// Configuration captures the migrate command settings.
type Configuration struct {
	Source          SourceConfiguration      `mapstructure:"source"`
	Destination     DestinationConfiguration `mapstructure:"destination"`
	OutputDirectory string                   `mapstructure:"output_dir"`
	CleanOutput     bool                     `mapstructure:"clean_output"`
	Workers         int                      `mapstructure:"workers"`
	RequestTimeout  time.Duration            `mapstructure:"request_timeout"`
	Retry           RetryConfiguration       `mapstructure:"retry"`
	Tracing         TracingConfiguration     `mapstructure:"tracing"`
}

// ConfigurationError lists every invalid or missing setting.
type ConfigurationError struct {
	MissingFields []string
	InvalidFields map[string]string
}

// Error describes the configuration problems.
func (configurationError ConfigurationError) Error() string {
	var messages []string
	if len(configurationError.MissingFields) > 0 {
		messages = append(messages, fmt.Sprintf(missingConfigurationTemplateConstant, strings.Join(configurationError.MissingFields, missingConfigurationSeparatorConstant)))
	}
	for _, field := range []string{workersKeyConstant, requestTimeoutKeyConstant, retryMaxAttemptsKeyConstant} {
		if message, invalid := configurationError.InvalidFields[field]; invalid {
			messages = append(messages, fmt.Sprintf(invalidConfigurationTemplateConstant, field, message))
		}
	}
	return strings.Join(messages, configurationErrorSeparatorConstant)
}

// DefaultConfiguration returns the baseline migrate configuration.
func DefaultConfiguration() Configuration {
	retryPolicy := assets.DefaultRetryPolicy()
	return Configuration{
		Source: SourceConfiguration{
			APIKeySource: defaultSourceAPIKeySourceConstant,
		},
		Destination: DestinationConfiguration{
			APIKeySource:          defaultDestinationAPIKeySourceConstant,
			ServerType:            defaultServerTypeConstant,
			ProcessDefinitionType: defaultProcessDefinitionTypeConstant,
			CloudFunctionType:     defaultCloudFunctionTypeConstant,
		},
		OutputDirectory: defaultOutputDirectoryConstant,
		CleanOutput:     true,
		Workers:         defaultWorkerCountConstant,
		RequestTimeout:  defaultRequestTimeoutConstant,
		Retry: RetryConfiguration{
			MaxAttempts:     retryPolicy.MaxAttempts,
			InitialInterval: retryPolicy.InitialInterval,
			MaxInterval:     retryPolicy.MaxInterval,
		},
	}
}

// DefaultConfigurationValues exposes the defaults as Viper keys under prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultConfiguration()
	values := map[string]any{
		sourceBaseURLKeyConstant:             defaults.Source.BaseURL,
		sourceProcessDefinitionKeyConstant:   defaults.Source.ProcessDefinitionID,
		destinationBaseURLKeyConstant:        defaults.Destination.BaseURL,
		destinationNameKeyConstant:           defaults.Destination.ProcessDefinitionName,
		destinationDescriptionKeyConstant:    defaults.Destination.Description,
		sourceAPIKeySourceKeyConstant:        defaults.Source.APIKeySource,
		destinationAPIKeySourceKeyConstant:   defaults.Destination.APIKeySource,
		destinationServerTypeKeyConstant:     defaults.Destination.ServerType,
		destinationDefinitionTypeKeyConstant: defaults.Destination.ProcessDefinitionType,
		destinationFunctionTypeKeyConstant:   defaults.Destination.CloudFunctionType,
		outputDirectoryKeyConstant:           defaults.OutputDirectory,
		cleanOutputKeyConstant:               defaults.CleanOutput,
		workersKeyConstant:                   defaults.Workers,
		requestTimeoutKeyConstant:            defaults.RequestTimeout,
		retryMaxAttemptsKeyConstant:          defaults.Retry.MaxAttempts,
		retryInitialIntervalKeyConstant:      defaults.Retry.InitialInterval,
		retryMaxIntervalKeyConstant:          defaults.Retry.MaxInterval,
		tracingEnabledKeyConstant:            defaults.Tracing.Enabled,
		tracingOutputFileKeyConstant:         defaults.Tracing.OutputFile,
	}

	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return values
	}
	prefixed := make(map[string]any, len(values))
	for key, value := range values {
		prefixed[fmt.Sprintf(configurationKeyTemplateConstant, trimmedPrefix, key)] = value
	}
	return prefixed
}

// Sanitize trims textual settings and fills unset values with defaults.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.Source.BaseURL = strings.TrimSpace(sanitized.Source.BaseURL)
	sanitized.Source.APIKeySource = valueOrDefault(sanitized.Source.APIKeySource, defaults.Source.APIKeySource)
	sanitized.Source.ProcessDefinitionID = strings.TrimSpace(sanitized.Source.ProcessDefinitionID)

	sanitized.Destination.BaseURL = strings.TrimSpace(sanitized.Destination.BaseURL)
	sanitized.Destination.APIKeySource = valueOrDefault(sanitized.Destination.APIKeySource, defaults.Destination.APIKeySource)
	sanitized.Destination.ProcessDefinitionName = strings.TrimSpace(sanitized.Destination.ProcessDefinitionName)
	sanitized.Destination.Description = strings.TrimSpace(sanitized.Destination.Description)
	sanitized.Destination.ServerType = valueOrDefault(sanitized.Destination.ServerType, defaults.Destination.ServerType)
	sanitized.Destination.ProcessDefinitionType = valueOrDefault(sanitized.Destination.ProcessDefinitionType, defaults.Destination.ProcessDefinitionType)
	sanitized.Destination.CloudFunctionType = valueOrDefault(sanitized.Destination.CloudFunctionType, defaults.Destination.CloudFunctionType)

	sanitized.OutputDirectory = valueOrDefault(sanitized.OutputDirectory, defaults.OutputDirectory)
	sanitized.Tracing.OutputFile = strings.TrimSpace(sanitized.Tracing.OutputFile)
	return sanitized
}

// Validate reports every missing or invalid setting at once.
func (configuration Configuration) Validate() error {
	validationError := ConfigurationError{InvalidFields: map[string]string{}}
	requiredFields := []struct {
		key   string
		value string
	}{
		{key: sourceBaseURLKeyConstant, value: configuration.Source.BaseURL},
		{key: sourceAPIKeySourceKeyConstant, value: configuration.Source.APIKeySource},
		{key: sourceProcessDefinitionKeyConstant, value: configuration.Source.ProcessDefinitionID},
		{key: destinationBaseURLKeyConstant, value: configuration.Destination.BaseURL},
		{key: destinationAPIKeySourceKeyConstant, value: configuration.Destination.APIKeySource},
		{key: destinationNameKeyConstant, value: configuration.Destination.ProcessDefinitionName},
		{key: outputDirectoryKeyConstant, value: configuration.OutputDirectory},
	}
	for _, field := range requiredFields {
		if len(strings.TrimSpace(field.value)) == 0 {
			validationError.MissingFields = append(validationError.MissingFields, field.key)
		}
	}

	if configuration.Workers <= 0 {
		validationError.InvalidFields[workersKeyConstant] = positiveValueRequiredMessageConstant
	}
	if configuration.RequestTimeout <= 0 {
		validationError.InvalidFields[requestTimeoutKeyConstant] = positiveValueRequiredMessageConstant
	}
	if configuration.Retry.MaxAttempts <= 0 {
		validationError.InvalidFields[retryMaxAttemptsKeyConstant] = positiveValueRequiredMessageConstant
	}

	if len(validationError.MissingFields) == 0 && len(validationError.InvalidFields) == 0 {
		return nil
	}
	return validationError
}

// RetryPolicy converts the retry settings for the asset runner.
func (configuration Configuration) RetryPolicy() assets.RetryPolicy {
	return assets.RetryPolicy{
		MaxAttempts:     configuration.Retry.MaxAttempts,
		InitialInterval: configuration.Retry.InitialInterval,
		MaxInterval:     configuration.Retry.MaxInterval,
	}
}

// Options builds the immutable run options.
func (configuration Configuration) Options() Options {
	return Options{
		SourceProcessDefinitionID: configuration.Source.ProcessDefinitionID,
		DestinationName:           configuration.Destination.ProcessDefinitionName,
		Description:               configuration.Destination.Description,
		ServerType:                configuration.Destination.ServerType,
		ProcessDefinitionType:     configuration.Destination.ProcessDefinitionType,
		Workers:                   configuration.Workers,
	}
}

func valueOrDefault(value string, defaultValue string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return defaultValue
	}
	return trimmedValue
}
