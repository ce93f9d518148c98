package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFrom_MissingReturnsDefault(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Sandbox.BasePath != "" {
		t.Errorf("expected empty base path, got %q", cfg.Sandbox.BasePath)
	}
}

func TestLoadFrom_ParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[sandbox]
base_path = "/srv/sandboxes"
dockerfile = "/srv/Dockerfile"

[overlay]
cache_dirs = ["/home/u/.cache/go-build"]

[logging]
[[logging.receivers]]
type = "syslog"
facility = "local0"
tag = "sandboxctl"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Sandbox.BasePath != "/srv/sandboxes" {
		t.Errorf("BasePath = %q", cfg.Sandbox.BasePath)
	}
	if cfg.Sandbox.DockerfilePath != "/srv/Dockerfile" {
		t.Errorf("DockerfilePath = %q", cfg.Sandbox.DockerfilePath)
	}
	if len(cfg.Overlay.CacheDirs) != 1 || cfg.Overlay.CacheDirs[0] != "/home/u/.cache/go-build" {
		t.Errorf("CacheDirs = %v", cfg.Overlay.CacheDirs)
	}
	if len(cfg.Logging.Receivers) != 1 || cfg.Logging.Receivers[0].Type != "syslog" {
		t.Errorf("Receivers = %v", cfg.Logging.Receivers)
	}
}

func TestLoadFrom_RejectsRelativeBasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[sandbox]
base_path = "relative/path"
`)
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for relative base_path")
	}
}

func TestLoadFrom_RejectsUnknownReceiverType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[[logging.receivers]]
type = "carrier-pigeon"
`)
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for unknown receiver type")
	}
}

func TestLoad_MergesPerRepoOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	writeFile(t, ConfigPath(), `
[sandbox]
base_path = "/global/base"
`)

	repoRoot := t.TempDir()
	writeFile(t, filepath.Join(repoRoot, LocalConfigFile), `
[sandbox]
dockerfile = "/repo/Dockerfile"
`)

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.BasePath != "/global/base" {
		t.Errorf("expected global base_path to survive, got %q", cfg.Sandbox.BasePath)
	}
	if cfg.Sandbox.DockerfilePath != "/repo/Dockerfile" {
		t.Errorf("expected repo override dockerfile, got %q", cfg.Sandbox.DockerfilePath)
	}
}

func TestLoadFrom_ExpandsGlobCacheDirs(t *testing.T) {
	cacheRoot := t.TempDir()
	for _, name := range []string{"go-build", "node-build"} {
		if err := os.MkdirAll(filepath.Join(cacheRoot, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(cacheRoot, "unrelated"), 0o755); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[overlay]
cache_dirs = ["`+cacheRoot+`/*-build"]
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	got := map[string]bool{}
	for _, d := range cfg.Overlay.CacheDirs {
		got[d] = true
	}
	for _, want := range []string{filepath.Join(cacheRoot, "go-build"), filepath.Join(cacheRoot, "node-build")} {
		if !got[want] {
			t.Errorf("expected glob to expand to %q, got %v", want, cfg.Overlay.CacheDirs)
		}
	}
	if got[filepath.Join(cacheRoot, "unrelated")] {
		t.Errorf("glob matched a directory it shouldn't have: %v", cfg.Overlay.CacheDirs)
	}
}

func TestLoadFrom_LiteralPathSurvivesWithoutGlob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[overlay]
credential_dirs = ["/home/u/.config/gh"]
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if len(cfg.Overlay.CredentialDirs) != 1 || cfg.Overlay.CredentialDirs[0] != "/home/u/.config/gh" {
		t.Errorf("literal credential dir should pass through unchanged, got %v", cfg.Overlay.CredentialDirs)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandHome("~/.cache"); got != filepath.Join(home, ".cache") {
		t.Errorf("expandHome(~/.cache) = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome should not touch absolute paths, got %q", got)
	}
}
