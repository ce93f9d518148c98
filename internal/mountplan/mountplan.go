// Package mountplan assembles the ordered mount specification a sandbox
// container is started with: the path-equality shim that makes the
// in-container clone occupy the host repo's absolute path, overlay-backed
// credential and cache directories, and the fish config bind when
// applicable.
package mountplan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies how an Entry is realized at container-start time.
type Kind string

const (
	// KindBindRO bind-mounts Source read-only at Target.
	KindBindRO Kind = "bind-ro"
	// KindBindRW bind-mounts Source read-write at Target.
	KindBindRW Kind = "bind-rw"
	// KindOverlay mounts a named overlay volume at Target, backed by
	// Source as the lower layer and Upper/Work on the sandbox cache.
	KindOverlay Kind = "overlay"
	// KindSymlinkShim creates a symlink at Source pointing at Target
	// before the container starts (host-side only, no in-container
	// mount of its own — it exists so a later bind-ro entry targeting
	// the same path resolves through it).
	KindSymlinkShim Kind = "symlink-shim"
)

// Entry is one element of a MountSpec.
type Entry struct {
	Kind Kind

	// Source is the host path (bind-ro/bind-rw/symlink-shim) or the
	// overlay's lower directory (overlay).
	Source string

	// Target is the in-container path, or, for symlink-shim, the
	// symlink's link target.
	Target string

	// VolumeName names the Docker volume realizing an overlay entry.
	VolumeName string
	Upper      string
	Work       string

	// Optional entries are dropped silently if Source does not exist
	// on the host.
	Optional bool
}

// Plan is the ordered MountSpec for one sandbox.
type Plan struct {
	Entries []Entry
}

// OverlayVolumeNames returns the Docker volume name of every overlay
// entry in the plan, in order — the set Delete must remove alongside the
// sandbox's on-disk state.
func (p *Plan) OverlayVolumeNames() []string {
	var names []string
	for _, e := range p.Entries {
		if e.Kind == KindOverlay {
			names = append(names, e.VolumeName)
		}
	}
	return names
}

// CredentialDir names one host directory or file that should be exposed
// to the sandbox copy-on-write, overlaid so container mutations never
// reach the host copy.
type CredentialDir struct {
	// HostPath is the absolute host path, e.g. $HOME/.claude.json.
	HostPath string
	// Optional paths are skipped without error when absent on the host.
	Optional bool
}

// Params carries everything the planner needs to assemble a sandbox's
// MountSpec.
type Params struct {
	// RepoRoot is P: the host repo's absolute path.
	RepoRoot string
	// ShimPath is S: the host-side symlink path that will point at
	// RepoRoot, then itself be bind-mounted read-only into the
	// container so the clone's origin resolves there.
	ShimPath string
	// CloneDir is the shallow clone, bind-mounted read-write at
	// RepoRoot inside the container.
	CloneDir string
	// SandboxHome is the per-sandbox cache directory overlay upper/work
	// dirs are created under (sandbox_root/<name>).
	SandboxHome string
	// HomeDir is the host user's home directory.
	HomeDir string
	// ShellPath is the host user's login shell, used to decide whether
	// to bind the fish config.
	ShellPath string
	// CredentialDirs are overlaid read-write: writes land in an upper
	// directory under SandboxHome and never reach the host path. That
	// directory is kept until the sandbox is deleted; it is not cleared
	// when the container stops.
	CredentialDirs []CredentialDir
	// CacheDirs are additional language-toolchain cache directories the
	// Dockerfile contract requires overlaid (e.g. ~/.cache/go-build).
	CacheDirs []CredentialDir
}

// overlaySlugPrefix namespaces overlay volume names so the GC scanner can
// recognize and correlate them back to a sandbox.
const overlaySlugPrefix = "sandboxctl-ovl-"

// Build assembles the MountSpec for sandboxName from params, in the fixed
// order the spec's path-equality invariant depends on: shim symlink and
// its read-only bind must be created before the clone is bound at P.
func Build(sandboxName string, p Params) (*Plan, error) {
	if !filepath.IsAbs(p.RepoRoot) {
		return nil, fmt.Errorf("mountplan: RepoRoot must be absolute, got %q", p.RepoRoot)
	}

	plan := &Plan{}

	plan.Entries = append(plan.Entries,
		Entry{Kind: KindSymlinkShim, Source: p.ShimPath, Target: p.RepoRoot},
		Entry{Kind: KindBindRO, Source: p.ShimPath, Target: p.ShimPath},
		Entry{Kind: KindBindRW, Source: p.CloneDir, Target: p.RepoRoot},
	)

	if isFishShell(p.ShellPath) {
		fishConfig := filepath.Join(p.HomeDir, ".config", "fish")
		if dirExists(fishConfig) {
			plan.Entries = append(plan.Entries, Entry{
				Kind:   KindBindRO,
				Source: fishConfig,
				Target: fishConfig,
			})
		}
	}

	for _, cred := range p.CredentialDirs {
		entry, ok, err := overlayEntry(sandboxName, p.SandboxHome, "credentials", cred)
		if err != nil {
			return nil, err
		}
		if ok {
			plan.Entries = append(plan.Entries, entry)
		}
	}

	for _, cache := range p.CacheDirs {
		entry, ok, err := overlayEntry(sandboxName, p.SandboxHome, "caches", cache)
		if err != nil {
			return nil, err
		}
		if ok {
			plan.Entries = append(plan.Entries, entry)
		}
	}

	return plan, nil
}

// overlayEntry creates the upper/work directories for one overlay mount
// and returns its Entry. ok is false (no error) when an optional
// credential/cache path is absent on the host.
func overlayEntry(sandboxName, sandboxHome, subdir string, dir CredentialDir) (Entry, bool, error) {
	if _, err := os.Stat(dir.HostPath); err != nil {
		if dir.Optional {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("mountplan: required path %s missing: %w", dir.HostPath, err)
	}

	upper, work, err := createOverlayDirs(sandboxHome, subdir, dir.HostPath)
	if err != nil {
		return Entry{}, false, err
	}

	return Entry{
		Kind:       KindOverlay,
		Source:     dir.HostPath,
		Target:     dir.HostPath,
		VolumeName: overlayVolumeName(sandboxName, dir.HostPath),
		Upper:      upper,
		Work:       work,
	}, true, nil
}

// createOverlayDirs creates the upper and work directories backing an
// overlay mount for dest, under sandboxHome/overlay/<subdir>/<slug>.
func createOverlayDirs(sandboxHome, subdir, dest string) (upper, work string, err error) {
	cleanDest := filepath.Clean(dest)
	if !filepath.IsAbs(cleanDest) {
		return "", "", fmt.Errorf("mountplan: overlay dest must be absolute, got %q", dest)
	}
	for seg := range strings.SplitSeq(cleanDest, string(filepath.Separator)) {
		if seg == ".." {
			return "", "", fmt.Errorf("mountplan: overlay dest contains path traversal: %s", dest)
		}
	}

	safePath := strings.ReplaceAll(strings.TrimPrefix(cleanDest, "/"), "/", "_")
	overlayDir := filepath.Join(sandboxHome, "overlay", subdir, safePath)
	upper = filepath.Join(overlayDir, "upper")
	work = filepath.Join(overlayDir, "work")

	if err := os.MkdirAll(upper, 0o755); err != nil {
		return "", "", fmt.Errorf("mountplan: create overlay upper dir: %w", err)
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return "", "", fmt.Errorf("mountplan: create overlay work dir: %w", err)
	}

	return upper, work, nil
}

// overlayVolumeName derives a stable Docker volume name for an overlay
// mount so the GC scanner can recognize it as belonging to sandboxName.
func overlayVolumeName(sandboxName, hostPath string) string {
	safe := strings.ReplaceAll(strings.TrimPrefix(filepath.Clean(hostPath), "/"), "/", "_")
	return overlaySlugPrefix + sandboxName + "-" + safe
}

// OverlayVolumePrefix returns the volume-name prefix for sandboxName, used
// by the GC scanner to find every overlay volume belonging to it.
func OverlayVolumePrefix(sandboxName string) string {
	return overlaySlugPrefix + sandboxName + "-"
}

func isFishShell(shellPath string) bool {
	return filepath.Base(shellPath) == "fish"
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
