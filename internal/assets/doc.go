// Package assets migrates the assets a workflow definition depends on.
//
// Each asset kind has a Migrator that fetches content from the source environment,
// transforms it for the destination, and creates it there. Runner applies the shared
// retry policy and converts every failure into a failed MigrationMapping so that one
// asset never aborts the batch.
package assets
