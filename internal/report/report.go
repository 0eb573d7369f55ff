package report

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/temirov/trustx-migrate/internal/bpmn"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	fullyMigratedSummaryConstant             = "fully migrated"
	singleFailureSummaryTemplateConstant     = "migrated with %d asset failure"
	pluralFailureSummaryTemplateConstant     = "migrated with %d asset failures"
	abortedSummaryTemplateConstant           = "aborted at phase %s: %s"
	summaryRenderErrorTemplateConstant       = "unable to render migration summary: %w"
	failedMappingDescriptionTemplateConstant = "%s (%s): %s"
)

// Outcome distinguishes the three user-visible run results.
type Outcome string

// Run outcomes.
const (
	OutcomeFullyMigrated        Outcome = "fully_migrated"
	OutcomeMigratedWithFailures Outcome = "migrated_with_failures"
	OutcomeAborted              Outcome = "aborted"
)

// ProcessDefinitionResult records the destination process definition created by the run.
type ProcessDefinitionResult struct {
	Created bool   `json:"created" yaml:"created"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	ThemeID string `json:"theme_id,omitempty" yaml:"theme_id,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// MigrationReport is produced once per run, whether or not the run completed.
type MigrationReport struct {
	RunID                            string                    `json:"run_id" yaml:"run_id"`
	SourceProcessDefinitionID        string                    `json:"source_process_definition_id" yaml:"source_process_definition_id"`
	DestinationProcessDefinitionName string                    `json:"destination_process_definition_name" yaml:"destination_process_definition_name"`
	StartedAt                        time.Time                 `json:"started_at" yaml:"started_at"`
	FinishedAt                       time.Time                 `json:"finished_at" yaml:"finished_at"`
	FinalPhase                       string                    `json:"final_phase" yaml:"final_phase"`
	AbortPhase                       string                    `json:"abort_phase,omitempty" yaml:"abort_phase,omitempty"`
	AbortReason                      string                    `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
	Mappings                         []shared.MigrationMapping `json:"mappings" yaml:"mappings"`
	ProcessDefinition                ProcessDefinitionResult   `json:"process_definition" yaml:"process_definition"`
	RewriteFlags                     []bpmn.RewriteFlag        `json:"rewrite_flags,omitempty" yaml:"rewrite_flags,omitempty"`
	Watchlists                       []string                  `json:"watchlists,omitempty" yaml:"watchlists,omitempty"`
	ExtractionWarnings               []bpmn.ExtractionWarning  `json:"extraction_warnings,omitempty" yaml:"extraction_warnings,omitempty"`
}

// Aborted reports whether a phase failed outright.
func (migrationReport MigrationReport) Aborted() bool {
	return len(migrationReport.AbortPhase) > 0
}

// FailedMappings lists the mappings of assets that could not be migrated.
func (migrationReport MigrationReport) FailedMappings() []shared.MigrationMapping {
	var failed []shared.MigrationMapping
	for _, mapping := range migrationReport.Mappings {
		if !mapping.Succeeded() {
			failed = append(failed, mapping)
		}
	}
	return failed
}

// Outcome classifies the run.
func (migrationReport MigrationReport) Outcome() Outcome {
	switch {
	case migrationReport.Aborted():
		return OutcomeAborted
	case len(migrationReport.FailedMappings()) > 0:
		return OutcomeMigratedWithFailures
	default:
		return OutcomeFullyMigrated
	}
}

// Summary renders the one-line outcome shown to operators.
func (migrationReport MigrationReport) Summary() string {
	switch migrationReport.Outcome() {
	case OutcomeAborted:
		return fmt.Sprintf(abortedSummaryTemplateConstant, migrationReport.AbortPhase, migrationReport.AbortReason)
	case OutcomeMigratedWithFailures:
		failureCount := len(migrationReport.FailedMappings())
		if failureCount == 1 {
			return fmt.Sprintf(singleFailureSummaryTemplateConstant, failureCount)
		}
		return fmt.Sprintf(pluralFailureSummaryTemplateConstant, failureCount)
	default:
		return fullyMigratedSummaryConstant
	}
}

// SummaryView is the condensed report printed at the end of a run.
type SummaryView struct {
	RunID                  string   `yaml:"run_id"`
	Outcome                Outcome  `yaml:"outcome"`
	Summary                string   `yaml:"summary"`
	AssetsDiscovered       int      `yaml:"assets_discovered"`
	AssetsMigrated         int      `yaml:"assets_migrated"`
	AssetsFailed           int      `yaml:"assets_failed"`
	FailedAssets           []string `yaml:"failed_assets,omitempty"`
	FlaggedReferences      int      `yaml:"flagged_references,omitempty"`
	Watchlists             []string `yaml:"watchlists,omitempty"`
	ProcessDefinitionID    string   `yaml:"process_definition_id,omitempty"`
	ProcessDefinitionError string   `yaml:"process_definition_error,omitempty"`
}

// View condenses the report for display.
func (migrationReport MigrationReport) View() SummaryView {
	failed := migrationReport.FailedMappings()
	view := SummaryView{
		RunID:                  migrationReport.RunID,
		Outcome:                migrationReport.Outcome(),
		Summary:                migrationReport.Summary(),
		AssetsDiscovered:       len(migrationReport.Mappings),
		AssetsMigrated:         len(migrationReport.Mappings) - len(failed),
		AssetsFailed:           len(failed),
		FlaggedReferences:      len(migrationReport.RewriteFlags),
		Watchlists:             migrationReport.Watchlists,
		ProcessDefinitionID:    migrationReport.ProcessDefinition.ID,
		ProcessDefinitionError: migrationReport.ProcessDefinition.Error,
	}
	for _, mapping := range failed {
		view.FailedAssets = append(view.FailedAssets, fmt.Sprintf(failedMappingDescriptionTemplateConstant, mapping.Reference.String(), mapping.FailureCategory, mapping.Error))
	}
	return view
}

// RenderSummary encodes the condensed report as YAML.
func RenderSummary(migrationReport MigrationReport) ([]byte, error) {
	rendered, renderError := yaml.Marshal(migrationReport.View())
	if renderError != nil {
		return nil, fmt.Errorf(summaryRenderErrorTemplateConstant, renderError)
	}
	return rendered, nil
}
