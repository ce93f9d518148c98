// Package gitclone creates and maintains the shallow host-repo clone that
// backs each sandbox, and the bidirectional git remotes linking it back to
// the host repository.
package gitclone

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sandboxctl/internal/logging"
)

// RemotePrefix namespaces the remote a sandbox's clone registers on the
// host repository.
const RemotePrefix = "sandbox-"

// RemoteName returns the name of the remote the host repo carries for the
// named sandbox, e.g. "sandbox-foo".
func RemoteName(sandboxName string) string {
	return RemotePrefix + sandboxName
}

// EnsureClone creates a shallow clone of repoRoot at cloneDir if one does
// not already exist. Re-invoking when cloneDir already contains a
// checkout is a no-op.
func EnsureClone(ctx context.Context, repoRoot, cloneDir string, logger *logging.ComponentLogger) error {
	if hasGitDir(cloneDir) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cloneDir), 0o755); err != nil {
		return fmt.Errorf("gitclone: create clone parent dir: %w", err)
	}

	if logger != nil {
		logger.Infof("cloning %s into %s", repoRoot, cloneDir)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--no-single-branch", repoRoot, cloneDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		if logger != nil {
			logger.Errorf("clone of %s failed: %v: %s", repoRoot, err, strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("%w: %s", ErrCloneFailed, strings.TrimSpace(string(out)))
	}

	return nil
}

// ReconcileRemotes ensures the clone's "origin" points at repoRoot (by
// filesystem path, so it resolves through the in-container read-only
// shim mount), and that repoRoot carries a remote named
// sandbox-<name> pointing at cloneDir. It also installs symmetric
// fetch refspecs on both sides so watcher-driven fetches bring in every
// branch. Safe to call repeatedly.
func ReconcileRemotes(ctx context.Context, repoRoot, cloneDir, sandboxName string, logger *logging.ComponentLogger) error {
	if err := setRemoteURL(ctx, cloneDir, "origin", repoRoot); err != nil {
		return err
	}
	if err := ensureFetchRefspec(ctx, cloneDir, "origin"); err != nil {
		return err
	}

	remote := RemoteName(sandboxName)
	if err := setRemoteURL(ctx, repoRoot, remote, cloneDir); err != nil {
		return err
	}
	if err := ensureFetchRefspec(ctx, repoRoot, remote); err != nil {
		return err
	}

	if logger != nil {
		logger.Infof("remotes reconciled: %s/origin -> %s, %s/%s -> %s", cloneDir, repoRoot, repoRoot, remote, cloneDir)
	}

	return nil
}

// RemoveRemote removes the sandbox-<name> remote from the host repo. Used
// by delete.
func RemoveRemote(ctx context.Context, repoRoot, sandboxName string) error {
	remote := RemoteName(sandboxName)
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "remote", "remove", remote)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "No such remote") {
			return nil
		}
		return fmt.Errorf("%w: remove remote %s: %s", ErrRemoteConfigFailed, remote, msg)
	}
	return nil
}

// Fetch runs `git fetch <remote>` in dir. Used by the sync watcher to move
// remote-tracking refs without touching the working tree.
func Fetch(ctx context.Context, dir, remote string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "fetch", remote)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git fetch %s in %s: %w: %s", remote, dir, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func setRemoteURL(ctx context.Context, dir, remote, url string) error {
	if remoteExists(ctx, dir, remote) {
		cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote", "set-url", remote, url)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: set-url %s in %s: %s", ErrRemoteConfigFailed, remote, dir, strings.TrimSpace(string(out)))
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote", "add", remote, url)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: add %s in %s: %s", ErrRemoteConfigFailed, remote, dir, strings.TrimSpace(string(out)))
	}
	return nil
}

func remoteExists(ctx context.Context, dir, remote string) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote")
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == remote {
			return true
		}
	}
	return false
}

// ensureFetchRefspec sets remote.<name>.fetch so a fetch brings in every
// branch as a remote-tracking ref, not just the one the clone happened to
// be pointed at.
func ensureFetchRefspec(ctx context.Context, dir, remote string) error {
	refspec := fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remote)
	key := fmt.Sprintf("remote.%s.fetch", remote)

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "config", "--get-all", key)
	out, _ := cmd.Output()
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == refspec {
			return nil
		}
	}

	addCmd := exec.CommandContext(ctx, "git", "-C", dir, "config", "--add", key, refspec)
	if out, err := addCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: set fetch refspec for %s in %s: %s", ErrRemoteConfigFailed, remote, dir, strings.TrimSpace(string(out)))
	}
	return nil
}

func hasGitDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}
