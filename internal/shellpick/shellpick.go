// Package shellpick detects the host user's login shell so the sandbox
// container runs the same one.
package shellpick

import (
	"os"
	"path/filepath"
	"strings"
)

// Shell identifies one of the shells the sandbox contract knows how to
// carry extra config for (currently just fish's config directory).
type Shell string

const (
	ShellFish Shell = "fish"
	ShellBash Shell = "bash"
	ShellZsh  Shell = "zsh"
)

// DefaultShellPath is used when $SHELL is unset or names a binary we
// don't recognize.
const DefaultShellPath = "/bin/bash"

// Detect reads $SHELL and classifies it, falling back to bash when unset
// or unrecognized.
func Detect() (Shell, string) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		return ShellBash, DefaultShellPath
	}

	name := filepath.Base(shellEnv)
	switch {
	case strings.Contains(name, "fish"):
		return ShellFish, shellEnv
	case strings.Contains(name, "zsh"):
		return ShellZsh, shellEnv
	case strings.Contains(name, "bash"):
		return ShellBash, shellEnv
	default:
		return ShellBash, DefaultShellPath
	}
}
