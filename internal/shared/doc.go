// Package shared defines the asset vocabulary exchanged between the workflow
// document model, the remote asset client, the asset migrators, and the
// migration orchestrator.
package shared
