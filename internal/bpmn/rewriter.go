package bpmn

import (
	"github.com/temirov/trustx-migrate/internal/shared"
)

// RewriteFlagReason explains why a reference was left unchanged.
type RewriteFlagReason string

// Rewrite flag reasons.
const (
	RewriteFlagReasonUnmapped RewriteFlagReason = "unmapped"
	RewriteFlagReasonFailed   RewriteFlagReason = "failed"
)

// MappingLookup resolves migration outcomes by asset identity.
type MappingLookup interface {
	Lookup(key shared.AssetKey) (shared.MigrationMapping, bool)
}

// Replacement records one rewritten reference occurrence.
type Replacement struct {
	Reference  shared.AssetReference `json:"reference" yaml:"reference"`
	NewID      string                `json:"new_id" yaml:"new_id"`
	NewVersion string                `json:"new_version,omitempty" yaml:"new_version,omitempty"`
}

// RewriteFlag marks a reference left unchanged for manual follow-up.
type RewriteFlag struct {
	Reference shared.AssetReference `json:"reference" yaml:"reference"`
	Reason    RewriteFlagReason     `json:"reason" yaml:"reason"`
	Detail    string                `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RewriteResult holds the rewritten copy of a document and the rewrite log.
type RewriteResult struct {
	Document     *Document
	Replacements []Replacement
	Flags        []RewriteFlag
}

// Rewrite returns a copy of the document whose references point at the migrated assets.
// References without a successful mapping keep their source values and are flagged once per asset.
// The input document is never modified.
func Rewrite(document *Document, lookup MappingLookup) RewriteResult {
	rewritten := document.Copy()
	result := RewriteResult{Document: rewritten}
	if rewritten == nil {
		return result
	}

	flaggedKeys := map[shared.AssetKey]struct{}{}
	flag := func(reference shared.AssetReference, reason RewriteFlagReason, detail string) {
		if _, flagged := flaggedKeys[reference.Key()]; flagged {
			return
		}
		flaggedKeys[reference.Key()] = struct{}{}
		result.Flags = append(result.Flags, RewriteFlag{Reference: reference, Reason: reason, Detail: detail})
	}

	for _, block := range rewritten.inputOutputBlocks() {
		for _, parameters := range documentReferenceParameters {
			reference, _, recognized := parameters.resolve(block)
			if !recognized {
				continue
			}

			var mapping shared.MigrationMapping
			var mapped bool
			if lookup != nil {
				mapping, mapped = lookup.Lookup(reference.Key())
			}
			if !mapped {
				flag(reference, RewriteFlagReasonUnmapped, "")
				continue
			}
			if !mapping.Succeeded() {
				flag(reference, RewriteFlagReasonFailed, mapping.Error)
				continue
			}

			replacement := Replacement{Reference: reference, NewID: reference.SourceID, NewVersion: mapping.NewVersion}
			if len(mapping.NewID) > 0 {
				block.set(parameters.nameParameter, mapping.NewID)
				replacement.NewID = mapping.NewID
			}
			if len(mapping.NewVersion) > 0 {
				if currentVersion, present := block.value(parameters.versionParameter); present {
					block.set(parameters.versionParameter, formatVersionLike(currentVersion, mapping.NewVersion))
				}
			}
			result.Replacements = append(result.Replacements, replacement)
		}
	}

	return result
}

// formatVersionLike keeps the ${...} wrapper when the source version used one.
func formatVersionLike(currentVersion string, newVersion string) string {
	if _, wrapped := unwrapExpression(currentVersion); wrapped {
		return expressionPrefixConstant + newVersion + expressionSuffixConstant
	}
	return newVersion
}
