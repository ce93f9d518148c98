package main

import (
	"path/filepath"
	"testing"

	"sandboxctl/internal/config"
)

func TestCredentialDirPlan_IncludesDefaultsAndConfig(t *testing.T) {
	home := "/home/alice"
	cfg := &config.Config{
		Overlay: config.OverlayConfig{
			CredentialDirs: []string{"/home/alice/.config/gh"},
		},
	}

	dirs := credentialDirPlan(home, cfg)

	wantDefault := filepath.Join(home, ".claude")
	found := false
	for _, d := range dirs {
		if d.HostPath == wantDefault {
			found = true
		}
		if !d.Optional {
			t.Errorf("credential dir %s should be optional", d.HostPath)
		}
	}
	if !found {
		t.Errorf("expected %s among default credential dirs, got %v", wantDefault, dirs)
	}

	foundExtra := false
	for _, d := range dirs {
		if d.HostPath == "/home/alice/.config/gh" {
			foundExtra = true
		}
	}
	if !foundExtra {
		t.Error("expected config-supplied credential dir to be included")
	}
}

func TestCacheDirPlan(t *testing.T) {
	cfg := &config.Config{
		Overlay: config.OverlayConfig{
			CacheDirs: []string{"/home/alice/.cache/go-build"},
		},
	}
	dirs := cacheDirPlan("/home/alice", cfg)
	if len(dirs) != 1 || dirs[0].HostPath != "/home/alice/.cache/go-build" {
		t.Errorf("cacheDirPlan = %v", dirs)
	}
}
