package mountplan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuild_OrdersShimBeforeClone(t *testing.T) {
	sandboxHome := t.TempDir()
	repoRoot := "/home/user/project"

	plan, err := Build("mytask", Params{
		RepoRoot:    repoRoot,
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     "/home/user",
		ShellPath:   "/bin/bash",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Entries) < 3 {
		t.Fatalf("expected at least 3 entries, got %d", len(plan.Entries))
	}

	if plan.Entries[0].Kind != KindSymlinkShim {
		t.Errorf("entry 0 kind = %s, want %s", plan.Entries[0].Kind, KindSymlinkShim)
	}
	if plan.Entries[1].Kind != KindBindRO || plan.Entries[1].Target != plan.Entries[0].Source {
		t.Errorf("entry 1 must bind-ro the shim path, got %+v", plan.Entries[1])
	}
	if plan.Entries[2].Kind != KindBindRW || plan.Entries[2].Target != repoRoot {
		t.Errorf("entry 2 must bind-rw the clone at RepoRoot, got %+v", plan.Entries[2])
	}
}

func TestBuild_RejectsRelativeRepoRoot(t *testing.T) {
	sandboxHome := t.TempDir()
	_, err := Build("mytask", Params{
		RepoRoot:    "relative/path",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
	})
	if err == nil {
		t.Fatal("expected error for relative RepoRoot")
	}
}

func TestBuild_OptionalCredentialSkippedWhenAbsent(t *testing.T) {
	sandboxHome := t.TempDir()
	plan, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     "/home/user",
		ShellPath:   "/bin/bash",
		CredentialDirs: []CredentialDir{
			{HostPath: filepath.Join(sandboxHome, "nonexistent-cred"), Optional: true},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, e := range plan.Entries {
		if e.Kind == KindOverlay {
			t.Errorf("unexpected overlay entry for missing optional path: %+v", e)
		}
	}
}

func TestBuild_RequiredCredentialMissingErrors(t *testing.T) {
	sandboxHome := t.TempDir()
	_, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     "/home/user",
		ShellPath:   "/bin/bash",
		CredentialDirs: []CredentialDir{
			{HostPath: filepath.Join(sandboxHome, "nonexistent-cred"), Optional: false},
		},
	})
	if err == nil {
		t.Fatal("expected error for missing required credential path")
	}
}

func TestBuild_OverlayCreatesUpperAndWorkDirs(t *testing.T) {
	sandboxHome := t.TempDir()
	cred := filepath.Join(sandboxHome, "fake-home", ".claude.json")
	if err := os.MkdirAll(filepath.Dir(cred), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cred, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     "/home/user",
		ShellPath:   "/bin/bash",
		CredentialDirs: []CredentialDir{
			{HostPath: cred, Optional: true},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var found *Entry
	for i := range plan.Entries {
		if plan.Entries[i].Kind == KindOverlay {
			found = &plan.Entries[i]
		}
	}
	if found == nil {
		t.Fatal("expected an overlay entry for the credential file")
	}
	if _, err := os.Stat(found.Upper); err != nil {
		t.Errorf("upper dir not created: %v", err)
	}
	if _, err := os.Stat(found.Work); err != nil {
		t.Errorf("work dir not created: %v", err)
	}
	if wantPrefix := OverlayVolumePrefix("mytask"); len(found.VolumeName) <= len(wantPrefix) || found.VolumeName[:len(wantPrefix)] != wantPrefix {
		t.Errorf("volume name %q missing prefix %q", found.VolumeName, wantPrefix)
	}
}

func TestOverlayVolumeNames_OnePerOverlayEntry(t *testing.T) {
	sandboxHome := t.TempDir()
	cred := filepath.Join(sandboxHome, "fake-home", ".claude.json")
	if err := os.MkdirAll(filepath.Dir(cred), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cred, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     "/home/user",
		ShellPath:   "/bin/bash",
		CredentialDirs: []CredentialDir{
			{HostPath: cred, Optional: true},
			{HostPath: filepath.Join(sandboxHome, "nonexistent-cred"), Optional: true},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	names := plan.OverlayVolumeNames()
	if len(names) != 1 {
		t.Fatalf("got %d overlay volume names, want 1 (the optional miss should be skipped): %v", len(names), names)
	}
	if wantPrefix := OverlayVolumePrefix("mytask"); len(names[0]) <= len(wantPrefix) || names[0][:len(wantPrefix)] != wantPrefix {
		t.Errorf("volume name %q missing prefix %q", names[0], wantPrefix)
	}
}

func TestBuild_FishConfigOnlyWhenFishShell(t *testing.T) {
	sandboxHome := t.TempDir()
	homeDir := t.TempDir()
	fishDir := filepath.Join(homeDir, ".config", "fish")
	if err := os.MkdirAll(fishDir, 0o755); err != nil {
		t.Fatal(err)
	}

	bashPlan, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     homeDir,
		ShellPath:   "/bin/bash",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range bashPlan.Entries {
		if e.Target == fishDir {
			t.Errorf("fish config bound for a bash shell")
		}
	}

	fishPlan, err := Build("mytask", Params{
		RepoRoot:    "/home/user/project",
		ShimPath:    filepath.Join(sandboxHome, "shim"),
		CloneDir:    filepath.Join(sandboxHome, "clone"),
		SandboxHome: sandboxHome,
		HomeDir:     homeDir,
		ShellPath:   "/usr/bin/fish",
	})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range fishPlan.Entries {
		if e.Target == fishDir && e.Kind == KindBindRO {
			found = true
		}
	}
	if !found {
		t.Errorf("expected fish config bind-ro entry for a fish shell")
	}
}
