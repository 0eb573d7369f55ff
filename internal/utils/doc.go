// Package utils hosts the command-line plumbing shared by trustx-migrate commands.
//
// ConfigurationLoader layers the embedded defaults, an optional configuration file and
// TRUSTX_ environment overrides through Viper. LoggerFactory builds zap loggers that
// write to standard error so that standard output stays reserved for run summaries.
package utils
