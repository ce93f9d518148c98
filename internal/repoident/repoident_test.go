package repoident

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
}

func TestResolve_Deterministic(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repoDir := t.TempDir()
	initGitRepo(t, repoDir)

	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	id1, err := resolveFrom(context.Background(), repoDir)
	if err != nil {
		t.Fatalf("resolveFrom: %v", err)
	}
	id2, err := resolveFrom(context.Background(), repoDir)
	if err != nil {
		t.Fatalf("resolveFrom (2nd): %v", err)
	}

	if id1.SandboxRoot != id2.SandboxRoot {
		t.Errorf("sandbox root not stable: %s vs %s", id1.SandboxRoot, id2.SandboxRoot)
	}
	if id1.HashHex != id2.HashHex {
		t.Errorf("hash not stable: %s vs %s", id1.HashHex, id2.HashHex)
	}

	wantPrefix := filepath.Join(cacheHome, SandboxDirName)
	if filepath.Dir(id1.SandboxRoot) != wantPrefix {
		t.Errorf("sandbox root %s not under %s", id1.SandboxRoot, wantPrefix)
	}

	info, err := os.Stat(id1.SandboxRoot)
	if err != nil {
		t.Fatalf("sandbox root not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("sandbox root is not a directory")
	}
}

func TestResolve_NotInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	_, err := resolveFrom(context.Background(), dir)
	if err != ErrNotInRepo {
		t.Errorf("expected ErrNotInRepo, got %v", err)
	}
}

func TestResolve_DistinctRepos(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	repoA := t.TempDir()
	initGitRepo(t, repoA)
	repoB := t.TempDir()
	initGitRepo(t, repoB)

	idA, err := resolveFrom(context.Background(), repoA)
	if err != nil {
		t.Fatalf("resolveFrom A: %v", err)
	}
	idB, err := resolveFrom(context.Background(), repoB)
	if err != nil {
		t.Fatalf("resolveFrom B: %v", err)
	}

	if idA.SandboxRoot == idB.SandboxRoot {
		t.Errorf("distinct repos mapped to same sandbox root: %s", idA.SandboxRoot)
	}
}
