// Package cli constructs the trustx-migrate command-line interface. It wires the Cobra
// root command, the layered configuration loader and the zap logger shared by every
// subcommand, and registers the migrate command.
package cli
