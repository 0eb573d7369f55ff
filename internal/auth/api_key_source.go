package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	pathutils "github.com/temirov/trustx-migrate/internal/utils/path"
)

const (
	keySourceSeparatorConstant                = ":"
	environmentKeySourceKindConstant          = "env"
	fileKeySourceKindConstant                 = "file"
	keySourceMissingMessageConstant           = "API key source must be provided"
	keySourceReferenceMissingTemplateConstant = "API key source %q has no reference"
	keySourceUnsupportedTemplateConstant      = "unsupported API key source kind %q"
	environmentKeyMissingTemplateConstant     = "environment variable %s holds no API key"
	fileKeyReadTemplateConstant               = "unable to read API key file %s: %w"
	fileKeyEmptyTemplateConstant              = "API key file %s is empty"
)

// KeySourceKind enumerates where an API key may be read from.
type KeySourceKind string

// Supported key source kinds.
const (
	KeySourceKindEnvironment KeySourceKind = KeySourceKind(environmentKeySourceKindConstant)
	KeySourceKindFile        KeySourceKind = KeySourceKind(fileKeySourceKindConstant)
)

// KeySource identifies one API key location.
type KeySource struct {
	Kind      KeySourceKind
	Reference string
}

// ParseKeySource interprets env:NAME and file:/path declarations. A bare value names an environment variable.
func ParseKeySource(declaration string) (KeySource, error) {
	trimmedDeclaration := strings.TrimSpace(declaration)
	if len(trimmedDeclaration) == 0 {
		return KeySource{}, errors.New(keySourceMissingMessageConstant)
	}

	kindValue, reference, separated := strings.Cut(trimmedDeclaration, keySourceSeparatorConstant)
	if !separated {
		return KeySource{Kind: KeySourceKindEnvironment, Reference: trimmedDeclaration}, nil
	}

	kind := KeySourceKind(strings.ToLower(strings.TrimSpace(kindValue)))
	reference = strings.TrimSpace(reference)
	switch kind {
	case KeySourceKindEnvironment, KeySourceKindFile:
		if len(reference) == 0 {
			return KeySource{}, fmt.Errorf(keySourceReferenceMissingTemplateConstant, trimmedDeclaration)
		}
		return KeySource{Kind: kind, Reference: reference}, nil
	default:
		return KeySource{}, fmt.Errorf(keySourceUnsupportedTemplateConstant, kindValue)
	}
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// KeyResolver reads API keys from their declared sources.
type KeyResolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
	homeExpander      *pathutils.HomeExpander
}

// NewKeyResolver creates a resolver; nil collaborators fall back to the process environment and file system.
func NewKeyResolver(environmentLookup EnvironmentLookup, fileReader FileReader) *KeyResolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if fileReader == nil {
		fileReader = os.ReadFile
	}
	return &KeyResolver{
		environmentLookup: environmentLookup,
		fileReader:        fileReader,
		homeExpander:      pathutils.NewHomeExpander(),
	}
}

// Resolve parses the declaration and returns the trimmed API key it points at.
func (resolver *KeyResolver) Resolve(declaration string) (string, error) {
	source, parseError := ParseKeySource(declaration)
	if parseError != nil {
		return "", parseError
	}

	switch source.Kind {
	case KeySourceKindFile:
		keyPath := resolver.homeExpander.Expand(source.Reference)
		contents, readError := resolver.fileReader(keyPath)
		if readError != nil {
			return "", fmt.Errorf(fileKeyReadTemplateConstant, keyPath, readError)
		}
		key := strings.TrimSpace(string(contents))
		if len(key) == 0 {
			return "", fmt.Errorf(fileKeyEmptyTemplateConstant, keyPath)
		}
		return key, nil
	default:
		value, _ := resolver.environmentLookup(source.Reference)
		key := strings.TrimSpace(value)
		if len(key) == 0 {
			return "", fmt.Errorf(environmentKeyMissingTemplateConstant, source.Reference)
		}
		return key, nil
	}
}
