// Package sandboxlife implements the Lifecycle Controller: attach-vs-create
// dispatch for `run`, orphan cleanup for `delete`, and the bookkeeping
// (lockfile, metadata sidecar, detached sync-watcher process) that ties a
// sandbox's host-side state to its container.
package sandboxlife

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sandboxctl/internal/dockerimage"
	"sandboxctl/internal/gitclone"
	"sandboxctl/internal/logging"
	"sandboxctl/internal/mountplan"
	"sandboxctl/internal/repoident"
)

// watcherPIDFile records the detached sync-watcher child's PID so Delete
// (or a later run) can stop it cleanly.
const watcherPIDFile = ".watcher.pid"

// RunParams carries everything Run needs beyond the sandbox name and the
// already-resolved RepoIdentity.
type RunParams struct {
	Name           string
	DockerfilePath string
	Identity       dockerimage.Identity
	ShellPath      string
	Command        []string
	Interactive    bool
	Network        string
	ProxyAddr      string
	CredentialDirs []mountplan.CredentialDir
	CacheDirs      []mountplan.CredentialDir
	Logger         *logging.ComponentLogger
}

// Controller orchestrates the attach-vs-create decision and the
// create-path's sub-steps (image, clone, mounts, container, watcher).
type Controller struct {
	// WatcherSelfExec, when set, is invoked (as argv[0] plus the three
	// positional args repoRoot, cloneDir, sandboxName) to spawn the
	// detached sync-watcher process. Tests substitute a stub; the real
	// binary passes its own executable path with a hidden subcommand.
	WatcherSelfExec []string
}

// Run performs the run(name, command) operation: compute identity and take
// the sandbox's lock, then attach if the container is already running;
// otherwise remove any stopped leftover container, ensure the image and
// clone exist, create the container, spawn the sync watcher, and attach.
func (c *Controller) Run(ctx context.Context, p RunParams) error {
	ri, err := repoident.Resolve(ctx)
	if err != nil {
		return err
	}

	sandboxHome := filepath.Join(ri.SandboxRoot, p.Name)
	if err := os.MkdirAll(sandboxHome, 0o700); err != nil {
		return fmt.Errorf("sandboxlife: create sandbox home: %w", err)
	}

	lock, err := TryAcquireLock(sandboxHome)
	if err != nil {
		return err
	}
	defer lock.Release()

	containerName := ContainerName(ri.RepoRoot, p.Name)
	exists, running := containerState(ctx, containerName)

	if exists && running {
		if err := touchSandbox(sandboxHome); err != nil {
			return err
		}
		return Attach(ctx, containerName, defaultShell(p.ShellPath), p.Command, p.Interactive)
	}

	if exists && !running {
		if err := StopAndRemove(ctx, containerName); err != nil {
			return fmt.Errorf("sandboxlife: remove stale container: %w", err)
		}
	}

	return c.create(ctx, ri, containerName, sandboxHome, p)
}

func (c *Controller) create(ctx context.Context, ri *repoident.RepoIdentity, containerName, sandboxHome string, p RunParams) error {
	tag, err := dockerimage.EnsureBuilt(ctx, p.DockerfilePath, p.Identity, p.Logger)
	if err != nil {
		return err
	}

	cloneDir := filepath.Join(sandboxHome, "clone")
	if err := gitclone.EnsureClone(ctx, ri.RepoRoot, cloneDir, p.Logger); err != nil {
		return err
	}
	if err := gitclone.ReconcileRemotes(ctx, ri.RepoRoot, cloneDir, p.Name, p.Logger); err != nil {
		return err
	}

	shimPath := filepath.Join(sandboxHome, "shim")
	if err := ensureShim(shimPath, ri.RepoRoot); err != nil {
		return err
	}

	plan, err := mountplan.Build(p.Name, mountplan.Params{
		RepoRoot:       ri.RepoRoot,
		ShimPath:       shimPath,
		CloneDir:       cloneDir,
		SandboxHome:    sandboxHome,
		HomeDir:        os.Getenv("HOME"),
		ShellPath:      p.ShellPath,
		CredentialDirs: p.CredentialDirs,
		CacheDirs:      p.CacheDirs,
	})
	if err != nil {
		return err
	}

	if err := CreateAndStart(ctx, CreateParams{
		Name:      containerName,
		Image:     tag,
		RepoRoot:  ri.RepoRoot,
		Identity:  p.Identity,
		MountPlan: plan,
		Network:   p.Network,
		ProxyAddr: p.ProxyAddr,
		Labels: map[string]string{
			"sandboxctl":          "1",
			"sandboxctl.name":     p.Name,
			"sandboxctl.repoRoot": ri.RepoRoot,
		},
	}); err != nil {
		return err
	}

	sandbox := &Sandbox{
		Name:           p.Name,
		RepoRoot:       ri.RepoRoot,
		CloneDir:       cloneDir,
		ShimPath:       shimPath,
		ContainerName:  containerName,
		OverlayVolumes: plan.OverlayVolumeNames(),
		CreatedAt:      time.Now(),
		LastUsed:       time.Now(),
		SandboxHome:    sandboxHome,
	}
	if err := sandbox.Save(); err != nil {
		return err
	}

	if err := c.spawnWatcher(ri.RepoRoot, cloneDir, p.Name, sandboxHome); err != nil && p.Logger != nil {
		p.Logger.Warnf("sync watcher did not start: %v", err)
	}

	return Attach(ctx, containerName, defaultShell(p.ShellPath), p.Command, p.Interactive)
}

// Delete stops and removes a sandbox's container, its overlay volumes,
// its sync watcher, its host-side remote on the repo, and its on-disk
// state. Mutually exclusive with a concurrent run/delete against the
// same name via the sandbox's lockfile: a second, concurrent delete
// reports Busy rather than racing this one's teardown.
func (c *Controller) Delete(ctx context.Context, name string) error {
	ri, err := repoident.Resolve(ctx)
	if err != nil {
		return err
	}

	sandboxHome := filepath.Join(ri.SandboxRoot, name)
	if _, err := os.Stat(sandboxHome); err != nil {
		return ErrUnknownSandbox
	}

	lock, err := TryAcquireLock(sandboxHome)
	if err != nil {
		return err
	}
	defer lock.Release()

	sandbox, err := LoadSandbox(sandboxHome)
	if err != nil {
		return err
	}

	if err := StopAndRemove(ctx, sandbox.ContainerName); err != nil {
		return err
	}
	c.stopWatcher(sandboxHome)

	// Best-effort: a volume that fails to remove here is exactly what
	// `gc` finds and cleans up later, via the same volume name.
	for _, volume := range sandbox.OverlayVolumes {
		_ = RemoveVolume(ctx, volume)
	}

	if err := gitclone.RemoveRemote(ctx, ri.RepoRoot, name); err != nil {
		return err
	}

	return os.RemoveAll(sandboxHome)
}

// List returns the metadata of every sandbox in the current repository's
// sandbox root.
func List(ctx context.Context) ([]*Sandbox, error) {
	ri, err := repoident.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	sandboxes, err := ListSandboxes(ri.SandboxRoot)
	if err != nil {
		return nil, err
	}
	for _, s := range sandboxes {
		_, running := containerState(ctx, s.ContainerName)
		s.Running = running
		s.SizeBytes = DirSize(s.SandboxHome)
	}
	return sandboxes, nil
}

func touchSandbox(sandboxHome string) error {
	s, err := LoadSandbox(sandboxHome)
	if err != nil {
		return err
	}
	return s.Touch()
}

func defaultShell(shellPath string) string {
	if shellPath == "" {
		return "/bin/sh"
	}
	return shellPath
}

// ensureShim creates the host-side symlink the path-equality trick relies
// on: a stable path inside the sandbox home that points at the real host
// repo, which is then bind-mounted read-only at itself.
func ensureShim(shimPath, repoRoot string) error {
	if target, err := os.Readlink(shimPath); err == nil {
		if target == repoRoot {
			return nil
		}
		if err := os.Remove(shimPath); err != nil {
			return fmt.Errorf("%w: replace stale shim: %v", ErrMountSetupFailed, err)
		}
	}
	if err := os.Symlink(repoRoot, shimPath); err != nil && !os.IsExist(err) {
		return fmt.Errorf("%w: create shim symlink: %v", ErrMountSetupFailed, err)
	}
	return nil
}

// spawnWatcher launches the sync watcher as a detached child process so it
// outlives the attached CLI session, recording its PID for later Stop.
func (c *Controller) spawnWatcher(repoRoot, cloneDir, sandboxName, sandboxHome string) error {
	argv := c.WatcherSelfExec
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("sandboxlife: resolve own executable: %w", err)
		}
		argv = []string{exe, "internal-watch"}
	}

	cmd := exec.Command(argv[0], append(argv[1:], repoRoot, cloneDir, sandboxName)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sandboxlife: start sync watcher: %w", err)
	}

	pidPath := filepath.Join(sandboxHome, watcherPIDFile)
	return os.WriteFile(pidPath, []byte(strconv.Itoa(cmd.Process.Pid)), 0o600)
}

// stopWatcher signals the detached sync-watcher process recorded for
// sandboxHome to exit, tolerating an absent or already-dead process.
func (c *Controller) stopWatcher(sandboxHome string) {
	pidPath := filepath.Join(sandboxHome, watcherPIDFile)
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
	_ = os.Remove(pidPath)
}
