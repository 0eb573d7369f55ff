package auth_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/trustx-migrate/internal/auth"
)

func TestParseKeySource(testInstance *testing.T) {
	testCases := []struct {
		name           string
		declaration    string
		expectedSource auth.KeySource
		expectError    bool
	}{
		{
			name:           "bare value names environment variable",
			declaration:    "TRUSTX_SOURCE_API_KEY",
			expectedSource: auth.KeySource{Kind: auth.KeySourceKindEnvironment, Reference: "TRUSTX_SOURCE_API_KEY"},
		},
		{
			name:           "explicit environment",
			declaration:    " env:DESTINATION_KEY ",
			expectedSource: auth.KeySource{Kind: auth.KeySourceKindEnvironment, Reference: "DESTINATION_KEY"},
		},
		{
			name:           "file path",
			declaration:    "FILE:/etc/trustx/key",
			expectedSource: auth.KeySource{Kind: auth.KeySourceKindFile, Reference: "/etc/trustx/key"},
		},
		{
			name:        "empty declaration",
			declaration: "  ",
			expectError: true,
		},
		{
			name:        "missing reference",
			declaration: "file:",
			expectError: true,
		},
		{
			name:        "unsupported kind",
			declaration: "vault:secret/key",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			source, parseError := auth.ParseKeySource(testCase.declaration)
			if testCase.expectError {
				require.Error(subTest, parseError)
				return
			}
			require.NoError(subTest, parseError)
			require.Equal(subTest, testCase.expectedSource, source)
		})
	}
}

func TestKeyResolverResolve(testInstance *testing.T) {
	temporaryDirectory := testInstance.TempDir()
	keyPath := filepath.Join(temporaryDirectory, "destination.key")
	require.NoError(testInstance, os.WriteFile(keyPath, []byte("  file-key\n"), 0o600))
	emptyKeyPath := filepath.Join(temporaryDirectory, "empty.key")
	require.NoError(testInstance, os.WriteFile(emptyKeyPath, []byte("\n"), 0o600))

	environmentValues := map[string]string{
		"SOURCE_KEY": " env-key ",
		"BLANK_KEY":  "   ",
	}
	lookup := func(key string) (string, bool) {
		value, exists := environmentValues[key]
		return value, exists
	}
	resolver := auth.NewKeyResolver(lookup, nil)

	testCases := []struct {
		name        string
		declaration string
		expectedKey string
		expectError bool
	}{
		{name: "environment", declaration: "env:SOURCE_KEY", expectedKey: "env-key"},
		{name: "bare environment", declaration: "SOURCE_KEY", expectedKey: "env-key"},
		{name: "file", declaration: "file:" + keyPath, expectedKey: "file-key"},
		{name: "unset environment", declaration: "env:MISSING_KEY", expectError: true},
		{name: "blank environment", declaration: "env:BLANK_KEY", expectError: true},
		{name: "empty file", declaration: "file:" + emptyKeyPath, expectError: true},
		{name: "missing file", declaration: "file:" + filepath.Join(temporaryDirectory, "absent.key"), expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			key, resolveError := resolver.Resolve(testCase.declaration)
			if testCase.expectError {
				require.Error(subTest, resolveError)
				return
			}
			require.NoError(subTest, resolveError)
			require.Equal(subTest, testCase.expectedKey, key)
		})
	}
}

func TestKeyResolverUsesInjectedFileReader(testInstance *testing.T) {
	requestedPaths := []string{}
	reader := func(path string) ([]byte, error) {
		requestedPaths = append(requestedPaths, path)
		if path == "/secrets/key" {
			return []byte("injected"), nil
		}
		return nil, errors.New("unexpected path")
	}
	resolver := auth.NewKeyResolver(nil, reader)

	key, resolveError := resolver.Resolve("file:/secrets/key")
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, "injected", key)
	require.Equal(testInstance, []string{"/secrets/key"}, requestedPaths)
}
