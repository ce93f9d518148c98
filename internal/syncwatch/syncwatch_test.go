package syncwatch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sandboxctl/internal/gitclone"
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

func commitFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("add", name)
	run("commit", "-q", "-m", "update "+name)
}

func TestShouldLogFailure_RateLimitsConsecutiveFailures(t *testing.T) {
	w := &Watcher{failureCount: make(map[string]int)}

	var logged []int
	for n := 1; n <= 36; n++ {
		if w.shouldLogFailure(sideHost) {
			logged = append(logged, n)
		}
	}

	want := []int{1, 5, 20, 35}
	if len(logged) != len(want) {
		t.Fatalf("logged failures %v, want %v", logged, want)
	}
	for i, n := range want {
		if logged[i] != n {
			t.Errorf("logged[%d] = %d, want %d", i, logged[i], n)
		}
	}
}

func TestShouldLogFailure_LogsFirstFailureAgainAfterReset(t *testing.T) {
	w := &Watcher{failureCount: make(map[string]int)}

	w.failureCount[sideClone] = 19
	if !w.shouldLogFailure(sideClone) {
		t.Fatal("20th consecutive failure must be logged")
	}

	w.mu.Lock()
	w.failureCount[sideClone] = 0
	w.mu.Unlock()

	if !w.shouldLogFailure(sideClone) {
		t.Error("first failure after a reset must be logged again")
	}
}

func TestWatcher_ClassifiesEventsByGitDir(t *testing.T) {
	requireGit(t)
	repoRoot := t.TempDir()
	cloneDir := t.TempDir()
	initGitRepo(t, repoRoot)
	initGitRepo(t, cloneDir)

	w, err := New(repoRoot, cloneDir, "mytask", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go w.Start()
	defer w.Stop()

	if got := w.classify(filepath.Join(repoRoot, ".git", "refs", "heads", "main")); got != sideHost {
		t.Errorf("classify(host ref) = %q, want %q", got, sideHost)
	}
	if got := w.classify(filepath.Join(cloneDir, ".git", "refs", "heads", "main")); got != sideClone {
		t.Errorf("classify(clone ref) = %q, want %q", got, sideClone)
	}
	if got := w.classify("/some/unrelated/path"); got != "" {
		t.Errorf("classify(unrelated) = %q, want empty", got)
	}
}

func TestWatcher_SyncsCloneAfterHostChange(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	repoRoot := t.TempDir()
	initGitRepo(t, repoRoot)

	cloneDir := t.TempDir()
	cmd := exec.Command("git", "clone", "--depth", "1", "--no-single-branch", repoRoot, cloneDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git clone: %v: %s", err, out)
	}
	if err := gitclone.ReconcileRemotes(ctx, repoRoot, cloneDir, "mytask", nil); err != nil {
		t.Fatalf("ReconcileRemotes: %v", err)
	}

	w, err := New(repoRoot, cloneDir, "mytask", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go w.Start()
	defer w.Stop()

	commitFile(t, repoRoot, "new.txt", "content\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		out, err := exec.Command("git", "-C", cloneDir, "log", "origin/master", "--oneline").CombinedOutput()
		if err == nil && strings.Contains(string(out), "update new.txt") {
			return
		}
		out, err = exec.Command("git", "-C", cloneDir, "log", "origin/main", "--oneline").CombinedOutput()
		if err == nil && strings.Contains(string(out), "update new.txt") {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("clone's origin remote-tracking ref never picked up the host commit")
}
