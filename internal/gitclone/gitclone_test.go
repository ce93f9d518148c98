package gitclone

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "[email protected]")
	run("config", "user.name", "test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
}

func TestEnsureClone_CreatesAndIsIdempotent(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	repoRoot := t.TempDir()
	initGitRepo(t, repoRoot)

	cloneDir := filepath.Join(t.TempDir(), "clone")
	if err := EnsureClone(ctx, repoRoot, cloneDir, nil); err != nil {
		t.Fatalf("EnsureClone: %v", err)
	}
	if !hasGitDir(cloneDir) {
		t.Fatalf("expected %s to contain a .git entry", cloneDir)
	}

	// Re-invoking must be a no-op, not an error.
	if err := EnsureClone(ctx, repoRoot, cloneDir, nil); err != nil {
		t.Fatalf("EnsureClone (2nd): %v", err)
	}
}

func TestReconcileRemotes_BidirectionalAndIdempotent(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	repoRoot := t.TempDir()
	initGitRepo(t, repoRoot)

	cloneDir := filepath.Join(t.TempDir(), "clone")
	if err := EnsureClone(ctx, repoRoot, cloneDir, nil); err != nil {
		t.Fatalf("EnsureClone: %v", err)
	}

	if err := ReconcileRemotes(ctx, repoRoot, cloneDir, "mytask", nil); err != nil {
		t.Fatalf("ReconcileRemotes: %v", err)
	}
	// Calling again must not error.
	if err := ReconcileRemotes(ctx, repoRoot, cloneDir, "mytask", nil); err != nil {
		t.Fatalf("ReconcileRemotes (2nd): %v", err)
	}

	originURL := remoteURL(t, cloneDir, "origin")
	if originURL != repoRoot {
		t.Errorf("clone origin = %q, want %q", originURL, repoRoot)
	}

	remote := RemoteName("mytask")
	hostURL := remoteURL(t, repoRoot, remote)
	if hostURL != cloneDir {
		t.Errorf("host remote %s = %q, want %q", remote, hostURL, cloneDir)
	}

	assertFetchRefspec(t, cloneDir, "origin")
	assertFetchRefspec(t, repoRoot, remote)
}

func TestRemoveRemote(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	repoRoot := t.TempDir()
	initGitRepo(t, repoRoot)

	cloneDir := filepath.Join(t.TempDir(), "clone")
	if err := EnsureClone(ctx, repoRoot, cloneDir, nil); err != nil {
		t.Fatal(err)
	}
	if err := ReconcileRemotes(ctx, repoRoot, cloneDir, "mytask", nil); err != nil {
		t.Fatal(err)
	}

	if err := RemoveRemote(ctx, repoRoot, "mytask"); err != nil {
		t.Fatalf("RemoveRemote: %v", err)
	}
	// Removing a remote that's already gone must not error.
	if err := RemoveRemote(ctx, repoRoot, "mytask"); err != nil {
		t.Fatalf("RemoveRemote (already gone): %v", err)
	}

	if remoteExists(ctx, repoRoot, RemoteName("mytask")) {
		t.Errorf("remote still present after RemoveRemote")
	}
}

func remoteURL(t *testing.T, dir, remote string) string {
	t.Helper()
	cmd := exec.Command("git", "-C", dir, "remote", "get-url", remote)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git remote get-url %s in %s: %v", remote, dir, err)
	}
	return strings.TrimSpace(string(out))
}

func assertFetchRefspec(t *testing.T, dir, remote string) {
	t.Helper()
	cmd := exec.Command("git", "-C", dir, "config", "--get-all", "remote."+remote+".fetch")
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git config --get-all remote.%s.fetch: %v", remote, err)
	}
	want := "+refs/heads/*:refs/remotes/" + remote + "/*"
	found := false
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == want {
			found = true
		}
	}
	if !found {
		t.Errorf("fetch refspec %q not set for remote %s in %s (got %q)", want, remote, dir, out)
	}
}
