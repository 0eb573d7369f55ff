// Package migration orchestrates copying a process definition and its assets between environments.
//
// A run moves through strictly sequential phases: the source document is fetched and parsed,
// asset references are extracted, every asset is migrated by a bounded worker pool, the document
// is rewritten against the resulting mappings, and the rewritten definition is created in the
// destination. Every run produces a report, including runs aborted by a phase failure.
package migration
