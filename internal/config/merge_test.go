package config

import "testing"

func TestMergeConfigs_ScalarOverlayWins(t *testing.T) {
	base := &Config{Sandbox: SandboxConfig{BasePath: "/base", DockerfilePath: "/base/Dockerfile"}}
	overlay := &Config{Sandbox: SandboxConfig{DockerfilePath: "/repo/Dockerfile"}}

	merged := mergeConfigs(base, overlay)
	if merged.Sandbox.BasePath != "/base" {
		t.Errorf("expected base_path to survive when overlay leaves it empty, got %q", merged.Sandbox.BasePath)
	}
	if merged.Sandbox.DockerfilePath != "/repo/Dockerfile" {
		t.Errorf("expected overlay dockerfile to win, got %q", merged.Sandbox.DockerfilePath)
	}
}

func TestMergeConfigs_SlicesAppend(t *testing.T) {
	base := &Config{Overlay: OverlayConfig{CacheDirs: []string{"/base/cache"}}}
	overlay := &Config{Overlay: OverlayConfig{CacheDirs: []string{"/repo/cache"}}}

	merged := mergeConfigs(base, overlay)
	want := []string{"/base/cache", "/repo/cache"}
	if len(merged.Overlay.CacheDirs) != len(want) {
		t.Fatalf("CacheDirs = %v, want %v", merged.Overlay.CacheDirs, want)
	}
	for i, v := range want {
		if merged.Overlay.CacheDirs[i] != v {
			t.Errorf("CacheDirs[%d] = %q, want %q", i, merged.Overlay.CacheDirs[i], v)
		}
	}
}

func TestMergeConfigs_NilOverlayReturnsBase(t *testing.T) {
	base := &Config{Sandbox: SandboxConfig{BasePath: "/base"}}
	if got := mergeConfigs(base, nil); got != base {
		t.Error("expected nil overlay to return base unchanged")
	}
}

func TestMergeConfigs_NilBaseReturnsOverlay(t *testing.T) {
	overlay := &Config{Sandbox: SandboxConfig{BasePath: "/repo"}}
	if got := mergeConfigs(nil, overlay); got != overlay {
		t.Error("expected nil base to return overlay unchanged")
	}
}

func TestMergeConfigs_DoesNotMutateBase(t *testing.T) {
	base := &Config{Overlay: OverlayConfig{CacheDirs: []string{"/base/cache"}}}
	overlay := &Config{Overlay: OverlayConfig{CacheDirs: []string{"/repo/cache"}}}

	mergeConfigs(base, overlay)

	if len(base.Overlay.CacheDirs) != 1 {
		t.Errorf("base was mutated: %v", base.Overlay.CacheDirs)
	}
}

func TestMergeStringMap(t *testing.T) {
	base := map[string]string{"env": "prod", "region": "us"}
	overlay := map[string]string{"env": "dev"}

	merged := mergeStringMap(base, overlay)
	if merged["env"] != "dev" {
		t.Errorf("expected overlay to win for conflicting key, got %q", merged["env"])
	}
	if merged["region"] != "us" {
		t.Errorf("expected base-only key to survive, got %q", merged["region"])
	}
}

func TestMergeStringMap_BothNil(t *testing.T) {
	if got := mergeStringMap(nil, nil); got != nil {
		t.Errorf("expected nil result for two nil maps, got %v", got)
	}
}
