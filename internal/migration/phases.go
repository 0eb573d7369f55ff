package migration

import "fmt"

const (
	phaseErrorTemplateConstant = "migration aborted at phase %s: %v"
)

// Phase names a step of the migration state machine.
type Phase string

// Migration phases in execution order, followed by the terminal states.
const (
	PhaseInit                        Phase = "Init"
	PhaseFetchSourceDocument         Phase = "FetchSourceDocument"
	PhaseExtractReferences           Phase = "ExtractReferences"
	PhaseMigrateAssets               Phase = "MigrateAssets"
	PhaseRewriteDocument             Phase = "RewriteDocument"
	PhaseCreateDestinationDefinition Phase = "CreateDestinationDefinition"
	PhaseDone                        Phase = "Done"
	PhaseFailed                      Phase = "Failed"
)

// PhaseError reports a phase that failed outright and halted the run.
type PhaseError struct {
	Phase Phase
	Cause error
}

// Error describes the aborted phase.
func (phaseError PhaseError) Error() string {
	return fmt.Sprintf(phaseErrorTemplateConstant, phaseError.Phase, phaseError.Cause)
}

// Unwrap exposes the underlying failure.
func (phaseError PhaseError) Unwrap() error {
	return phaseError.Cause
}
