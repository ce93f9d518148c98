// Package config provides TOML-based configuration for sandboxctl: a
// global file at ~/.config/sandboxctl/config.toml, optionally overridden
// per-repository by a .sandboxctl.toml at the repo root.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

// LocalConfigFile is the name of the per-repo override file.
const LocalConfigFile = ".sandboxctl.toml"

// Config is the sandboxctl configuration file.
type Config struct {
	// Sandbox contains sandbox lifecycle settings.
	Sandbox SandboxConfig `toml:"sandbox"`

	// Overlay contains overlay/cache mount settings.
	Overlay OverlayConfig `toml:"overlay"`

	// Logging contains remote logging settings.
	Logging LoggingConfig `toml:"logging"`
}

// SandboxConfig contains sandbox-related configuration.
type SandboxConfig struct {
	// BasePath is loaded, home-expanded, merged and validated, but no
	// command reads it: sandbox homes are always created under
	// $XDG_CACHE_HOME/sandbox.
	BasePath string `toml:"base_path"`

	// DockerfilePath overrides the default Dockerfile location
	// (~/.config/sandboxctl/Dockerfile).
	DockerfilePath string `toml:"dockerfile"`
}

// OverlayConfig contains overlay mount settings.
type OverlayConfig struct {
	// CredentialDirs lists additional host paths (files or directories,
	// `~` expanded) to overlay-mount copy-on-write alongside the built-in
	// credential set, e.g. tool-specific auth files. Entries containing a
	// doublestar glob (`*`, `?`, `[...]`, `{...}`) are expanded against
	// the host filesystem at load time, e.g. "~/.config/*/auth.json".
	CredentialDirs []string `toml:"credential_dirs"`

	// CacheDirs lists toolchain cache directories to overlay-mount, e.g.
	// "~/.cache/go-build", "~/.npm", "~/.cargo", or a glob such as
	// "~/.cache/*-build".
	CacheDirs []string `toml:"cache_dirs"`
}

// LoggingConfig contains remote logging configuration, identical in
// shape to the teacher's internal/config.LoggingConfig.
type LoggingConfig struct {
	// Receivers is a list of remote log destinations.
	Receivers []ReceiverConfig `toml:"receivers"`

	// Attributes are custom key-value pairs added to all log entries.
	Attributes map[string]string `toml:"attributes"`
}

// ReceiverConfig defines a single log receiver.
type ReceiverConfig struct {
	Type          string            `toml:"type"`
	Address       string            `toml:"address"`
	Endpoint      string            `toml:"endpoint"`
	Protocol      string            `toml:"protocol"`
	Facility      string            `toml:"facility"`
	Tag           string            `toml:"tag"`
	Headers       map[string]string `toml:"headers"`
	BatchSize     int               `toml:"batch_size"`
	FlushInterval string            `toml:"flush_interval"`
	Insecure      bool              `toml:"insecure"`
}

// DefaultConfig returns the zero-value configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// ConfigDir returns $XDG_CONFIG_HOME/sandboxctl, or ~/.config/sandboxctl.
func ConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "sandboxctl")
}

// ConfigPath returns the path to the global config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultDockerfilePath returns the default Dockerfile location.
func DefaultDockerfilePath() string {
	return filepath.Join(ConfigDir(), "Dockerfile")
}

// LoadFrom reads the configuration from path, returning the zero-value
// Config if the file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Sandbox.BasePath = expandHome(cfg.Sandbox.BasePath)
	cfg.Sandbox.DockerfilePath = expandHome(cfg.Sandbox.DockerfilePath)
	for i, dir := range cfg.Overlay.CredentialDirs {
		cfg.Overlay.CredentialDirs[i] = expandHome(dir)
	}
	for i, dir := range cfg.Overlay.CacheDirs {
		cfg.Overlay.CacheDirs[i] = expandHome(dir)
	}

	cfg.Overlay.CredentialDirs, err = expandGlobs(cfg.Overlay.CredentialDirs)
	if err != nil {
		return nil, fmt.Errorf("overlay.credential_dirs: %w", err)
	}
	cfg.Overlay.CacheDirs, err = expandGlobs(cfg.Overlay.CacheDirs)
	if err != nil {
		return nil, fmt.Errorf("overlay.cache_dirs: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// hasGlobMeta reports whether path contains a doublestar pattern
// metacharacter, so plain literal paths (the common case) skip glob
// matching entirely and survive even when they don't exist yet on disk
// (mountplan's Optional handling decides that).
func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// expandGlobs expands each path containing a glob metacharacter against
// the host filesystem, leaving literal paths untouched. A pattern that
// matches nothing expands to zero entries rather than an error, since an
// unmet optional credential/cache glob is a normal, quiet outcome.
func expandGlobs(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !hasGlobMeta(p) || !filepath.IsAbs(p) {
			out = append(out, p)
			continue
		}

		matches, err := doublestar.Glob(os.DirFS("/"), strings.TrimPrefix(p, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
		for _, m := range matches {
			out = append(out, "/"+m)
		}
	}
	return out, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Sandbox.BasePath != "" {
		if err := validatePath(c.Sandbox.BasePath); err != nil {
			return fmt.Errorf("sandbox.base_path: %w", err)
		}
	}

	validReceiverTypes := map[string]bool{"syslog": true, "syslog-remote": true, "otlp": true}
	for i, r := range c.Logging.Receivers {
		if !validReceiverTypes[r.Type] {
			return fmt.Errorf("logging.receivers[%d]: type must be 'syslog', 'syslog-remote', or 'otlp', got %q", i, r.Type)
		}
	}

	return nil
}

// Load loads the global config, then merges in a per-repo .sandboxctl.toml
// found at repoRoot, if present.
func Load(repoRoot string) (*Config, error) {
	cfg, err := LoadFrom(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if repoRoot == "" {
		return cfg, nil
	}

	localPath := filepath.Join(repoRoot, LocalConfigFile)
	local, err := LoadFrom(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", LocalConfigFile, err)
	}

	return mergeConfigs(cfg, local), nil
}

// validatePath rejects path traversal and requires an absolute path.
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %q", path)
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		return fmt.Errorf("path must be absolute: %q", path)
	}
	return nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] != '/' {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GenerateDefault returns the default configuration as a commented TOML
// string, written by `sandboxctl config init`.
func GenerateDefault() string {
	return `# sandboxctl configuration file
# Location: ~/.config/sandboxctl/config.toml
# A per-repo .sandboxctl.toml at the repository root may override these.

[sandbox]
# Validated but not used: sandbox homes are always placed under
# $XDG_CACHE_HOME/sandbox.
# base_path = "~/.cache/sandbox"

# Path to the Dockerfile used to build the sandbox image.
# Defaults to ~/.config/sandboxctl/Dockerfile
# dockerfile = "/path/to/Dockerfile"

[overlay]
# Additional credential files/directories to overlay-mount copy-on-write,
# beyond the built-in Claude credential set. Entries may be a glob
# (~/.config/*/auth.json matches every tool's auth file under ~/.config).
# credential_dirs = ["~/.config/gh"]

# Toolchain cache directories to overlay-mount. Entries may be a glob.
# cache_dirs = ["~/.cache/go-build", "~/.npm", "~/.cargo", "~/.cache/*-build"]

# Remote logging configuration
[logging]

# [logging.attributes]
# environment = "development"

# [[logging.receivers]]
# type = "syslog"
# facility = "local0"
# tag = "sandboxctl"

# [[logging.receivers]]
# type = "otlp"
# endpoint = "http://localhost:4318/v1/logs"
# protocol = "http"
`
}
