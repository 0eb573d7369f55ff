// Package bpmn models the workflow definition document of a process definition.
//
// It parses and serializes BPMN XML while preserving namespace prefixes,
// extracts the asset references embedded in camunda input/output blocks, and
// rewrites those references against a mapping table without mutating the
// parsed source document.
package bpmn
