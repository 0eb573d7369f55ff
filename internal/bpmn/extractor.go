package bpmn

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	functionNameParameterConstant        = "functionName"
	functionVersionParameterConstant     = "functionVersion"
	dataFormNameParameterConstant        = "dataFormName"
	dataFormVersionParameterConstant     = "dataFormVersion"
	customPageNameParameterConstant      = "customPageName"
	customPageVersionParameterConstant   = "customPageVersion"
	customPageKeyParameterConstant       = "customPageKey"
	watchlistNameParameterConstant       = "watchlistName"
	expressionPrefixConstant             = "${"
	deferredExpressionPrefixConstant     = "#{"
	expressionSuffixConstant             = "}"
	warningEmptyNameConstant             = "asset name is empty"
	warningDynamicNameConstant           = "asset name is an expression and cannot be resolved statically"
	warningUnparseableVersionConstant    = "asset version is not an integer; the active version will be used"
	warningOrphanVersionConstant         = "asset version has no matching name parameter"
	warningConflictingVersionConstant    = "asset is referenced with a different version elsewhere; the first occurrence is migrated"
	unrecognizedReferenceMessageConstant = "Skipping unrecognized asset reference"
	referenceWarningMessageConstant      = "Asset reference warning"
	watchlistDetectedMessageConstant     = "Watchlist referenced by workflow must exist in the destination"
	extractionCompletedMessageConstant   = "Asset references extracted"
	logFieldParameterConstant            = "parameter"
	logFieldValueConstant                = "value"
	logFieldReasonConstant               = "reason"
	logFieldWatchlistConstant            = "watchlist"
	logFieldReferenceCountConstant       = "reference_count"
	logFieldWatchlistCountConstant       = "watchlist_count"
)

// referenceParameters describes where a kind's reference lives inside an input/output block.
type referenceParameters struct {
	kind             shared.AssetKind
	nameParameter    string
	versionParameter string
	keyParameter     string
}

var documentReferenceParameters = []referenceParameters{
	{kind: shared.AssetKindCloudFunction, nameParameter: functionNameParameterConstant, versionParameter: functionVersionParameterConstant},
	{kind: shared.AssetKindDataForm, nameParameter: dataFormNameParameterConstant, versionParameter: dataFormVersionParameterConstant},
	{kind: shared.AssetKindCustomPage, nameParameter: customPageNameParameterConstant, versionParameter: customPageVersionParameterConstant, keyParameter: customPageKeyParameterConstant},
}

// EmbedsInDocument reports whether references of the kind are carried by the workflow document.
// Themes are attached to the process definition instead.
func EmbedsInDocument(kind shared.AssetKind) bool {
	switch kind {
	case shared.AssetKindCloudFunction, shared.AssetKindDataForm, shared.AssetKindCustomPage:
		return true
	case shared.AssetKindTheme:
		return false
	default:
		return false
	}
}

// ExtractionWarning describes a reference shape that was skipped or degraded.
type ExtractionWarning struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Value     string `json:"value" yaml:"value"`
	Reason    string `json:"reason" yaml:"reason"`
}

// Extraction lists the distinct asset references of a document in first-occurrence order.
type Extraction struct {
	References []shared.AssetReference
	Watchlists []string
	Warnings   []ExtractionWarning
}

// ExtractReferences scans the document for asset references. Duplicate references collapse to
// their first occurrence. Unrecognized shapes are reported as warnings and skipped.
func ExtractReferences(document *Document) Extraction {
	extraction := Extraction{}
	seenReferences := map[shared.AssetKey]int{}
	seenWatchlists := map[string]struct{}{}

	for _, block := range document.inputOutputBlocks() {
		for _, parameters := range documentReferenceParameters {
			reference, warnings, recognized := parameters.resolve(block)
			extraction.Warnings = append(extraction.Warnings, warnings...)
			if !recognized {
				continue
			}

			key := reference.Key()
			if existingIndex, seen := seenReferences[key]; seen {
				existing := extraction.References[existingIndex]
				if existing.SourceVersion != reference.SourceVersion {
					extraction.Warnings = append(extraction.Warnings, ExtractionWarning{
						Parameter: parameters.versionParameter,
						Value:     reference.String(),
						Reason:    warningConflictingVersionConstant,
					})
				}
				continue
			}
			seenReferences[key] = len(extraction.References)
			extraction.References = append(extraction.References, reference)
		}

		if watchlistName, present := block.value(watchlistNameParameterConstant); present && len(watchlistName) > 0 {
			if _, seen := seenWatchlists[watchlistName]; !seen {
				seenWatchlists[watchlistName] = struct{}{}
				extraction.Watchlists = append(extraction.Watchlists, watchlistName)
			}
		}
	}

	return extraction
}

func (parameters referenceParameters) resolve(block parameterBlock) (shared.AssetReference, []ExtractionWarning, bool) {
	nameValue, namePresent := block.value(parameters.nameParameter)
	versionValue, versionPresent := block.value(parameters.versionParameter)

	if !namePresent {
		if versionPresent {
			return shared.AssetReference{}, []ExtractionWarning{{Parameter: parameters.versionParameter, Value: versionValue, Reason: warningOrphanVersionConstant}}, false
		}
		return shared.AssetReference{}, nil, false
	}
	if len(nameValue) == 0 {
		return shared.AssetReference{}, []ExtractionWarning{{Parameter: parameters.nameParameter, Value: nameValue, Reason: warningEmptyNameConstant}}, false
	}
	if isExpression(nameValue) {
		return shared.AssetReference{}, []ExtractionWarning{{Parameter: parameters.nameParameter, Value: nameValue, Reason: warningDynamicNameConstant}}, false
	}

	reference := shared.AssetReference{Kind: parameters.kind, SourceID: nameValue}
	var warnings []ExtractionWarning

	if versionPresent && len(versionValue) > 0 {
		normalizedVersion, parsed := normalizeVersion(versionValue)
		if parsed {
			reference.SourceVersion = normalizedVersion
		} else {
			warnings = append(warnings, ExtractionWarning{Parameter: parameters.versionParameter, Value: versionValue, Reason: warningUnparseableVersionConstant})
		}
	}

	if len(parameters.keyParameter) > 0 {
		if keyValue, keyPresent := block.value(parameters.keyParameter); keyPresent {
			reference.PageKey = keyValue
		}
	}

	return reference, warnings, true
}

// normalizeVersion accepts plain integers and ${N} expressions.
func normalizeVersion(versionValue string) (string, bool) {
	unwrapped, _ := unwrapExpression(versionValue)
	parsedVersion, parseError := strconv.Atoi(unwrapped)
	if parseError != nil || parsedVersion < 0 {
		return "", false
	}
	return strconv.Itoa(parsedVersion), true
}

func unwrapExpression(value string) (string, bool) {
	trimmedValue := strings.TrimSpace(value)
	if strings.HasPrefix(trimmedValue, expressionPrefixConstant) && strings.HasSuffix(trimmedValue, expressionSuffixConstant) {
		return strings.TrimSpace(trimmedValue[len(expressionPrefixConstant) : len(trimmedValue)-len(expressionSuffixConstant)]), true
	}
	return trimmedValue, false
}

func isExpression(value string) bool {
	return strings.Contains(value, expressionPrefixConstant) || strings.Contains(value, deferredExpressionPrefixConstant)
}

// ReferenceExtractor wraps ExtractReferences with structured logging of warnings.
type ReferenceExtractor struct {
	logger *zap.Logger
}

// NewReferenceExtractor constructs a ReferenceExtractor.
func NewReferenceExtractor(logger *zap.Logger) *ReferenceExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceExtractor{logger: logger}
}

// Extract scans the document and logs skipped shapes and watchlists.
func (extractor *ReferenceExtractor) Extract(document *Document) Extraction {
	extraction := ExtractReferences(document)

	for _, warning := range extraction.Warnings {
		message := referenceWarningMessageConstant
		if warning.Reason != warningUnparseableVersionConstant && warning.Reason != warningConflictingVersionConstant {
			message = unrecognizedReferenceMessageConstant
		}
		extractor.logger.Warn(
			message,
			zap.String(logFieldParameterConstant, warning.Parameter),
			zap.String(logFieldValueConstant, warning.Value),
			zap.String(logFieldReasonConstant, warning.Reason),
		)
	}

	for _, watchlistName := range extraction.Watchlists {
		extractor.logger.Warn(watchlistDetectedMessageConstant, zap.String(logFieldWatchlistConstant, watchlistName))
	}

	extractor.logger.Info(
		extractionCompletedMessageConstant,
		zap.Int(logFieldReferenceCountConstant, len(extraction.References)),
		zap.Int(logFieldWatchlistCountConstant, len(extraction.Watchlists)),
	)

	return extraction
}
