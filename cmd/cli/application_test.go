package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/trustx-migrate/internal/utils"
)

const (
	applicationTestConfigFileNameConstant = "trustx.yaml"
	applicationTestConfigContentConstant  = `common:
  log_level: warn
migration:
  workers: 7
  source:
    base_url: https://source.example.test
  retry:
    max_attempts: 5
    initial_interval: 2s
`
	applicationTestMigrateCommandConstant = "migrate"
	applicationTestVersionOutputConstant  = "trustx-migrate version dev\n"
)

func newTestApplication(testInstance *testing.T) (*Application, *bytes.Buffer) {
	testInstance.Helper()
	testInstance.Setenv("HOME", testInstance.TempDir())

	application := NewApplication()
	application.loggerFactory = utils.NewLoggerFactoryWithOutput(io.Discard)

	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(outputBuffer)
	return application, outputBuffer
}

func TestApplicationLoadsEmbeddedDefaults(testInstance *testing.T) {
	application, _ := newTestApplication(testInstance)
	application.rootCommand.SetArgs([]string{})

	require.NoError(testInstance, application.Execute())

	require.Equal(testInstance, string(utils.LogLevelInfo), application.configuration.Common.LogLevel)
	require.Equal(testInstance, string(utils.LogFormatStructured), application.configuration.Common.LogFormat)
	require.Equal(testInstance, 4, application.configuration.Migration.Workers)
	require.Equal(testInstance, "P1", application.configuration.Migration.Destination.ServerType)
	require.Equal(testInstance, "env:TRUSTX_SOURCE_API_KEY", application.configuration.Migration.Source.APIKeySource)
	require.Equal(testInstance, 30*time.Second, application.configuration.Migration.RequestTimeout)
	require.Equal(testInstance, 500*time.Millisecond, application.configuration.Migration.Retry.InitialInterval)
	require.True(testInstance, application.configuration.Migration.CleanOutput)
}

func TestApplicationConfigurationLayers(testInstance *testing.T) {
	testCases := []struct {
		name                string
		environment         map[string]string
		useConfigFile       bool
		arguments           []string
		expectedLogLevel    string
		expectedWorkers     int
		expectedSourceURL   string
		expectedMaxAttempts int
	}{
		{
			name:                "configuration file overrides embedded defaults",
			useConfigFile:       true,
			expectedLogLevel:    "warn",
			expectedWorkers:     7,
			expectedSourceURL:   "https://source.example.test",
			expectedMaxAttempts: 5,
		},
		{
			name: "environment overrides configuration file",
			environment: map[string]string{
				"TRUSTX_MIGRATION_WORKERS":         "9",
				"TRUSTX_MIGRATION_SOURCE_BASE_URL": "https://env.example.test",
			},
			useConfigFile:       true,
			expectedLogLevel:    "warn",
			expectedWorkers:     9,
			expectedSourceURL:   "https://env.example.test",
			expectedMaxAttempts: 5,
		},
		{
			name:                "flag overrides configured log level",
			useConfigFile:       true,
			arguments:           []string{"--log-level", "error"},
			expectedLogLevel:    "error",
			expectedWorkers:     7,
			expectedSourceURL:   "https://source.example.test",
			expectedMaxAttempts: 5,
		},
		{
			name:                "environment alone overrides defaults",
			environment:         map[string]string{"TRUSTX_COMMON_LOG_LEVEL": "debug"},
			expectedLogLevel:    "debug",
			expectedWorkers:     4,
			expectedMaxAttempts: 3,
		},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			application, _ := newTestApplication(subTest)
			for environmentKey, environmentValue := range testCase.environment {
				subTest.Setenv(environmentKey, environmentValue)
			}

			arguments := append([]string{}, testCase.arguments...)
			if testCase.useConfigFile {
				configurationPath := filepath.Join(subTest.TempDir(), applicationTestConfigFileNameConstant)
				require.NoError(subTest, os.WriteFile(configurationPath, []byte(applicationTestConfigContentConstant), 0o600))
				arguments = append(arguments, "--config", configurationPath)
			}
			application.rootCommand.SetArgs(arguments)

			require.NoError(subTest, application.Execute())
			require.Equal(subTest, testCase.expectedLogLevel, application.configuration.Common.LogLevel)
			require.Equal(subTest, testCase.expectedWorkers, application.configuration.Migration.Workers)
			require.Equal(subTest, testCase.expectedSourceURL, application.configuration.Migration.Source.BaseURL)
			require.Equal(subTest, testCase.expectedMaxAttempts, application.configuration.Migration.Retry.MaxAttempts)
		})
	}
}

func TestApplicationRejectsInvalidLogSettings(testInstance *testing.T) {
	testCases := []struct {
		name      string
		arguments []string
	}{
		{name: "unknown level", arguments: []string{"--log-level", "verbose"}},
		{name: "unknown format", arguments: []string{"--log-format", "xml"}},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			application, _ := newTestApplication(subTest)
			application.rootCommand.SetArgs(testCase.arguments)

			executionError := application.Execute()
			require.Error(subTest, executionError)
			require.Contains(subTest, executionError.Error(), "unable to create logger")
		})
	}
}

func TestApplicationRejectsUnreadableConfigurationFile(testInstance *testing.T) {
	application, _ := newTestApplication(testInstance)
	configurationPath := filepath.Join(testInstance.TempDir(), applicationTestConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte("common: [unterminated"), 0o600))
	application.rootCommand.SetArgs([]string{"--config", configurationPath})

	executionError := application.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "unable to load configuration")
}

func TestApplicationRegistersMigrateCommand(testInstance *testing.T) {
	application, _ := newTestApplication(testInstance)

	migrateCommand, remainingArguments, findError := application.rootCommand.Find([]string{applicationTestMigrateCommandConstant})
	require.NoError(testInstance, findError)
	require.Empty(testInstance, remainingArguments)
	require.Equal(testInstance, applicationTestMigrateCommandConstant, migrateCommand.Name())
	require.NotNil(testInstance, migrateCommand.Flags().Lookup("source-process-definition"))
}

func TestApplicationReportsVersion(testInstance *testing.T) {
	application, outputBuffer := newTestApplication(testInstance)
	application.rootCommand.SetArgs([]string{"--version"})

	require.NoError(testInstance, application.Execute())
	require.Equal(testInstance, applicationTestVersionOutputConstant, outputBuffer.String())
}

func TestSyncLoggerInstanceToleratesNilLogger(testInstance *testing.T) {
	application := NewApplication()
	require.NoError(testInstance, application.syncLoggerInstance(nil))
}

func TestEmbeddedDefaultConfigurationReturnsCopy(testInstance *testing.T) {
	firstCopy := EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, firstCopy)
	firstCopy[0] = '#'
	require.NotEqual(testInstance, firstCopy[0], EmbeddedDefaultConfiguration()[0])
}
