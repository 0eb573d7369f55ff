package bpmn_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/trustx-migrate/internal/bpmn"
	"github.com/temirov/trustx-migrate/internal/shared"
)

func wrapBlocks(blocks ...string) []byte {
	body := ""
	for _, block := range blocks {
		body += "<bpmn:task><bpmn:extensionElements><camunda:inputOutput>" + block + "</camunda:inputOutput></bpmn:extensionElements></bpmn:task>"
	}
	return []byte(`<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:camunda="http://camunda.org/schema/1.0/bpmn"><bpmn:process id="p">` + body + `</bpmn:process></bpmn:definitions>`)
}

func parameter(name string, value string) string {
	return `<camunda:inputParameter name="` + name + `">` + value + `</camunda:inputParameter>`
}

func TestExtractReferencesCollapsesDuplicates(testInstance *testing.T) {
	testInstance.Parallel()

	extraction := bpmn.ExtractReferences(parseSample(testInstance))

	require.Equal(testInstance, []shared.AssetReference{
		{Kind: shared.AssetKindCloudFunction, SourceID: "cf-1", SourceVersion: "2"},
		{Kind: shared.AssetKindDataForm, SourceID: "form-1", SourceVersion: "3"},
		{Kind: shared.AssetKindCustomPage, SourceID: "welcome-page", SourceVersion: "1", PageKey: "welcome"},
	}, extraction.References)
	require.Equal(testInstance, []string{"sanctions"}, extraction.Watchlists)
	require.Empty(testInstance, extraction.Warnings)
}

func TestExtractReferencesHandlesReferenceShapes(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name               string
		blocks             []string
		expectedReferences []shared.AssetReference
		expectedWarnings   int
	}{
		{
			name:   "distinct_references_in_discovery_order",
			blocks: []string{parameter("dataFormName", "form-b"), parameter("functionName", "cf-a"), parameter("dataFormName", "form-a")},
			expectedReferences: []shared.AssetReference{
				{Kind: shared.AssetKindDataForm, SourceID: "form-b"},
				{Kind: shared.AssetKindCloudFunction, SourceID: "cf-a"},
				{Kind: shared.AssetKindDataForm, SourceID: "form-a"},
			},
		},
		{
			name:   "same_name_different_kinds",
			blocks: []string{parameter("functionName", "shared") + parameter("dataFormName", "shared")},
			expectedReferences: []shared.AssetReference{
				{Kind: shared.AssetKindCloudFunction, SourceID: "shared"},
				{Kind: shared.AssetKindDataForm, SourceID: "shared"},
			},
		},
		{
			name:             "empty_name_skipped",
			blocks:           []string{parameter("functionName", "  ")},
			expectedWarnings: 1,
		},
		{
			name:             "expression_name_skipped",
			blocks:           []string{parameter("functionName", "${selectedFunction}")},
			expectedWarnings: 1,
		},
		{
			name:             "version_without_name_skipped",
			blocks:           []string{parameter("dataFormVersion", "4")},
			expectedWarnings: 1,
		},
		{
			name:   "unparseable_version_keeps_reference",
			blocks: []string{parameter("functionName", "cf-x") + parameter("functionVersion", "latest")},
			expectedReferences: []shared.AssetReference{
				{Kind: shared.AssetKindCloudFunction, SourceID: "cf-x"},
			},
			expectedWarnings: 1,
		},
		{
			name:   "conflicting_versions_keep_first",
			blocks: []string{parameter("functionName", "cf-x") + parameter("functionVersion", "1"), parameter("functionName", "cf-x") + parameter("functionVersion", "2")},
			expectedReferences: []shared.AssetReference{
				{Kind: shared.AssetKindCloudFunction, SourceID: "cf-x", SourceVersion: "1"},
			},
			expectedWarnings: 1,
		},
		{
			name:   "foreign_parameters_ignored",
			blocks: []string{parameter("timeout", "30") + parameter("customPageName", "page") + parameter("customPageVersion", "${7}")},
			expectedReferences: []shared.AssetReference{
				{Kind: shared.AssetKindCustomPage, SourceID: "page", SourceVersion: "7"},
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()

			document, parseError := bpmn.Parse(wrapBlocks(testCase.blocks...))
			require.NoError(testInstance, parseError)

			extraction := bpmn.ExtractReferences(document)
			require.Equal(testInstance, testCase.expectedReferences, extraction.References)
			require.Len(testInstance, extraction.Warnings, testCase.expectedWarnings)
		})
	}
}

func TestReferenceExtractorLogsWarnings(testInstance *testing.T) {
	testInstance.Parallel()

	observedCore, observedLogs := observer.New(zap.DebugLevel)
	extractor := bpmn.NewReferenceExtractor(zap.New(observedCore))

	document, parseError := bpmn.Parse(wrapBlocks(parameter("functionName", "#{dynamic}"), parameter("watchlistName", "pep")))
	require.NoError(testInstance, parseError)

	extraction := extractor.Extract(document)
	require.Empty(testInstance, extraction.References)
	require.Equal(testInstance, []string{"pep"}, extraction.Watchlists)

	require.Equal(testInstance, 1, observedLogs.FilterMessage("Skipping unrecognized asset reference").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Watchlist referenced by workflow must exist in the destination").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Asset references extracted").Len())
}

func TestEmbedsInDocument(testInstance *testing.T) {
	testInstance.Parallel()

	for _, kind := range shared.AllAssetKinds() {
		require.Equal(testInstance, kind != shared.AssetKindTheme, bpmn.EmbedsInDocument(kind), kind)
	}
}
