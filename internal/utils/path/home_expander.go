package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	homeShortcutConstant      = "~"
	homeShortcutSlashConstant = "~/"
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// EnvironmentExpander substitutes $NAME and ${NAME} references.
type EnvironmentExpander func(value string) string

// HomeExpander resolves user-relative locations such as ~/trustx/output or $HOME/keys/source.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	environmentExpander   EnvironmentExpander
	homeDirectory         string
	homeDirectoryError    error
	resolveOnce           sync.Once
}

// NewHomeExpander constructs a HomeExpander backed by the operating system.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProviders(os.UserHomeDir, os.ExpandEnv)
}

// NewHomeExpanderWithProviders constructs a HomeExpander with custom lookups. Nil lookups fall back to the operating system.
func NewHomeExpanderWithProviders(homeDirectoryProvider HomeDirectoryProvider, environmentExpander EnvironmentExpander) *HomeExpander {
	if homeDirectoryProvider == nil {
		homeDirectoryProvider = os.UserHomeDir
	}
	if environmentExpander == nil {
		environmentExpander = os.ExpandEnv
	}
	return &HomeExpander{homeDirectoryProvider: homeDirectoryProvider, environmentExpander: environmentExpander}
}

// Expand substitutes environment references and then a leading home shortcut.
// Locations that cannot be resolved are returned with only the environment references substituted.
func (expander *HomeExpander) Expand(location string) string {
	if expander == nil || len(location) == 0 {
		return location
	}

	expanded := location
	if strings.Contains(expanded, "$") {
		expanded = expander.environmentExpander(expanded)
	}
	if !strings.HasPrefix(expanded, homeShortcutConstant) {
		return expanded
	}

	homeDirectory := expander.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return expanded
	}

	switch {
	case expanded == homeShortcutConstant:
		return homeDirectory
	case strings.HasPrefix(expanded, homeShortcutSlashConstant):
		return filepath.Join(homeDirectory, strings.TrimPrefix(expanded, homeShortcutSlashConstant))
	case strings.HasPrefix(expanded, homeShortcutConstant+string(os.PathSeparator)):
		return filepath.Join(homeDirectory, strings.TrimPrefix(expanded, homeShortcutConstant+string(os.PathSeparator)))
	default:
		return expanded
	}
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.resolveOnce.Do(func() {
		expander.homeDirectory, expander.homeDirectoryError = expander.homeDirectoryProvider()
	})
	if expander.homeDirectoryError != nil {
		return ""
	}
	return expander.homeDirectory
}
