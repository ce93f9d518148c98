// Package repoident resolves the identity of the host git repository a
// sandbox is invoked against, and the on-disk location reserved for its
// sandboxes.
package repoident

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SandboxDirName is the directory under $XDG_CACHE_HOME that holds all
// sandbox roots.
const SandboxDirName = "sandbox"

// RepoIdentity is the canonical identity of a host git repository and the
// sandbox root derived from it.
type RepoIdentity struct {
	// RepoRoot is the canonicalized absolute path of the repository (P).
	RepoRoot string
	// Basename is filepath.Base(RepoRoot) (B).
	Basename string
	// HashHex is the hex sha256 of RepoRoot.
	HashHex string
	// SandboxRoot is $XDG_CACHE_HOME/sandbox/<B>-<hash8>.
	SandboxRoot string
}

// Resolve determines the RepoIdentity for the current working directory.
// It discovers the enclosing git repository, canonicalizes its path so the
// hash is stable across invocations (e.g. through symlinked checkouts),
// and ensures the sandbox root directory exists with user-only permissions.
func Resolve(ctx context.Context) (*RepoIdentity, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("repoident: getwd: %w", err)
	}
	return resolveFrom(ctx, cwd)
}

func resolveFrom(ctx context.Context, cwd string) (*RepoIdentity, error) {
	root, err := repoRoot(ctx, cwd)
	if err != nil {
		return nil, err
	}

	canon, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("repoident: resolve symlinks for %s: %w", root, err)
	}
	canon = filepath.Clean(canon)

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil, ErrNoHome
	}

	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(home, ".cache")
	}

	sum := sha256.Sum256([]byte(canon))
	hashHex := hex.EncodeToString(sum[:])

	basename := filepath.Base(canon)
	sandboxRoot := filepath.Join(cacheHome, SandboxDirName, basename+"-"+hashHex[:8])

	if err := os.MkdirAll(sandboxRoot, 0o700); err != nil {
		return nil, fmt.Errorf("repoident: create sandbox root %s: %w", sandboxRoot, err)
	}

	return &RepoIdentity{
		RepoRoot:    canon,
		Basename:    basename,
		HashHex:     hashHex,
		SandboxRoot: sandboxRoot,
	}, nil
}

// repoRoot shells out to git to find the top-level directory of the
// repository containing dir.
func repoRoot(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", ErrNotInRepo
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return "", ErrNotInRepo
	}
	return root, nil
}
