package shared_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/trustx-migrate/internal/shared"
)

func TestParseAssetKind(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		input       string
		expected    shared.AssetKind
		expectError bool
	}{
		{name: "cloud_function", input: "cloud_function", expected: shared.AssetKindCloudFunction},
		{name: "trims_and_lowers", input: "  Data_Form ", expected: shared.AssetKindDataForm},
		{name: "theme", input: "theme", expected: shared.AssetKindTheme},
		{name: "rejects_empty", input: " ", expectError: true},
		{name: "rejects_unknown", input: "watchlist", expectError: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kind, parseError := shared.ParseAssetKind(testCase.input)
			if testCase.expectError {
				require.Error(t, parseError)
				return
			}
			require.NoError(t, parseError)
			require.Equal(t, testCase.expected, kind)
		})
	}
}

func TestAssetKindDirectoryNamesAreDistinct(t *testing.T) {
	t.Parallel()

	seenDirectories := map[string]shared.AssetKind{}
	for _, kind := range shared.AllAssetKinds() {
		require.True(t, kind.Valid())
		directoryName := kind.DirectoryName()
		require.NotEmpty(t, directoryName)
		_, duplicate := seenDirectories[directoryName]
		require.False(t, duplicate, directoryName)
		seenDirectories[directoryName] = kind
	}
}

func TestAssetReferenceIdentityIgnoresVersion(t *testing.T) {
	t.Parallel()

	first := shared.AssetReference{Kind: shared.AssetKindCloudFunction, SourceID: "cf-1", SourceVersion: "2"}
	second := shared.AssetReference{Kind: shared.AssetKindCloudFunction, SourceID: "cf-1", SourceVersion: "5"}
	other := shared.AssetReference{Kind: shared.AssetKindDataForm, SourceID: "cf-1"}

	require.Equal(t, first.Key(), second.Key())
	require.NotEqual(t, first.Key(), other.Key())
	require.Equal(t, "cloud_function:cf-1@2", first.String())
	require.Equal(t, "data_form:cf-1", other.String())
}

func TestMappingTableRecordsEachKeyOnce(t *testing.T) {
	t.Parallel()

	table := shared.NewMappingTable()
	reference := shared.AssetReference{Kind: shared.AssetKindDataForm, SourceID: "form-1"}

	require.NoError(t, table.Record(shared.MigrationMapping{Reference: reference, Status: shared.MappingStatusSuccess, NewID: "form-77"}))
	require.Error(t, table.Record(shared.MigrationMapping{Reference: reference, Status: shared.MappingStatusFailed}))
	require.Error(t, table.Record(shared.MigrationMapping{Reference: shared.AssetReference{Kind: "bogus", SourceID: "x"}}))
	require.Error(t, table.Record(shared.MigrationMapping{Reference: shared.AssetReference{Kind: shared.AssetKindTheme}}))

	mapping, exists := table.Lookup(reference.Key())
	require.True(t, exists)
	require.Equal(t, "form-77", mapping.NewID)
	require.True(t, mapping.Succeeded())
	require.Equal(t, 1, table.Len())
}

func TestMappingTableConcurrentRecordingKeepsDiscoveryOrder(t *testing.T) {
	t.Parallel()

	const referenceCount = 32

	references := make([]shared.AssetReference, 0, referenceCount)
	for index := 0; index < referenceCount; index++ {
		references = append(references, shared.AssetReference{
			Kind:     shared.AssetKindCloudFunction,
			SourceID: fmt.Sprintf("cf-%02d", index),
		})
	}

	table := shared.NewMappingTable()
	var waitGroup sync.WaitGroup
	for index := len(references) - 1; index >= 0; index-- {
		waitGroup.Add(1)
		go func(reference shared.AssetReference) {
			defer waitGroup.Done()
			require.NoError(t, table.Record(shared.MigrationMapping{Reference: reference, Status: shared.MappingStatusSuccess}))
		}(references[index])
	}
	waitGroup.Wait()

	ordered := table.Ordered(references)
	require.Len(t, ordered, referenceCount)
	for index, mapping := range ordered {
		require.Equal(t, references[index], mapping.Reference)
	}
}
