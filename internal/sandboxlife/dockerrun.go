package sandboxlife

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sandboxctl/internal/dockerimage"
	"sandboxctl/internal/mountplan"
)

// ReadySentinel is the path the entrypoint touches once per-user setup
// (home directory ownership, UID/GID creation) has completed inside the
// container. waitForReady polls for it before attaching.
const ReadySentinel = "/tmp/.sandboxctl-ready"

// readyPollInterval and readyTimeout bound how long Run waits for a
// freshly created container to finish entrypoint setup.
const (
	readyPollInterval = 100 * time.Millisecond
	readyTimeout      = 90 * time.Second
)

// ContainerName derives the Docker container name for a sandbox: stable
// across invocations against the same repo and sandbox name, readable
// enough to recognize in `docker ps`.
func ContainerName(repoRoot, sandboxName string) string {
	sum := sha256.Sum256([]byte(repoRoot + "\x00" + sandboxName))
	return fmt.Sprintf("sandboxctl-%s-%x", sandboxName, sum[:6])
}

// containerState reports whether a container with the given name exists
// and, if so, whether it is currently running.
func containerState(ctx context.Context, name string) (exists, running bool) {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "--format", "{{.State.Running}}", name)
	out, err := cmd.Output()
	if err != nil {
		return false, false
	}
	return true, strings.TrimSpace(string(out)) == "true"
}

// buildMountArgs renders a mount plan's bind entries as `-v` docker flags
// and its overlay entries as `--mount` flags for a local overlay volume.
// Symlink-shim entries produce no flag: they are plain host filesystem
// state, which the caller creates before create.
func buildMountArgs(plan *mountplan.Plan) ([]string, error) {
	var args []string
	for _, e := range plan.Entries {
		switch e.Kind {
		case mountplan.KindSymlinkShim:
			// Host-side filesystem state; no docker flag of its own.
			continue
		case mountplan.KindBindRO:
			args = append(args, "-v", e.Source+":"+e.Target+":ro")
		case mountplan.KindBindRW:
			args = append(args, "-v", e.Source+":"+e.Target)
		case mountplan.KindOverlay:
			mountOpt := fmt.Sprintf(
				`type=volume,src=%s,dst=%s,volume-driver=local,volume-opt=type=overlay,volume-opt=device=overlay,"volume-opt=o=lowerdir=%s,upperdir=%s,workdir=%s"`,
				e.VolumeName, e.Target, e.Source, e.Upper, e.Work,
			)
			args = append(args, "--mount", mountOpt)
		default:
			return nil, fmt.Errorf("%w: unknown mount kind %q", ErrMountSetupFailed, e.Kind)
		}
	}
	return args, nil
}

// CreateParams bundles what a fresh container needs at creation time.
type CreateParams struct {
	Name      string
	Image     string
	RepoRoot  string
	Identity  dockerimage.Identity
	MountPlan *mountplan.Plan
	Network   string
	// ProxyAddr, if set, is the egress proxy's gateway-bound address
	// (host:port). It is passed to the container as HTTP_PROXY/
	// HTTPS_PROXY/NO_PROXY so allowlisted traffic routes through it —
	// the only path out of the `--internal` network.
	ProxyAddr string
	Labels    map[string]string
}

// CreateAndStart runs `docker create` then `docker start` for a new
// sandbox container, and waits for the entrypoint's readiness sentinel.
func CreateAndStart(ctx context.Context, p CreateParams) error {
	args := []string{"create", "--name", p.Name, "-it", "--hostname", "sandbox"}

	args = append(args, "--cap-drop", "ALL",
		"--cap-add", "CHOWN",
		"--cap-add", "SETUID",
		"--cap-add", "SETGID",
		"--security-opt", "no-new-privileges:true",
	)

	args = append(args,
		"-e", "USER_NAME="+p.Identity.UserName,
		"-e", "USER_ID="+strconv.Itoa(p.Identity.UID),
		"-e", "GROUP_ID="+strconv.Itoa(p.Identity.GID),
	)

	args = append(args, "-w", p.RepoRoot)

	if p.Network != "" {
		args = append(args, "--network", p.Network)
	}

	if p.ProxyAddr != "" {
		proxyURL := "http://" + p.ProxyAddr
		args = append(args,
			"-e", "HTTP_PROXY="+proxyURL,
			"-e", "HTTPS_PROXY="+proxyURL,
			"-e", "http_proxy="+proxyURL,
			"-e", "https_proxy="+proxyURL,
			"-e", "NO_PROXY=localhost,127.0.0.1",
			"-e", "no_proxy=localhost,127.0.0.1",
		)
	}

	for k, v := range p.Labels {
		args = append(args, "--label", k+"="+v)
	}

	mountArgs, err := buildMountArgs(p.MountPlan)
	if err != nil {
		return err
	}
	args = append(args, mountArgs...)

	args = append(args, p.Image, "/bin/sh")

	if out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: docker create: %s", ErrContainerStartFailed, strings.TrimSpace(string(out)))
	}

	if out, err := exec.CommandContext(ctx, "docker", "start", p.Name).CombinedOutput(); err != nil {
		return fmt.Errorf("%w: docker start: %s", ErrContainerStartFailed, strings.TrimSpace(string(out)))
	}

	return waitForReady(ctx, p.Name)
}

// waitForReady polls the container for ReadySentinel.
func waitForReady(ctx context.Context, containerName string) error {
	deadline := time.Now().Add(readyTimeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s did not become ready within %s", ErrContainerStartFailed, containerName, readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			check := exec.CommandContext(ctx, "docker", "exec", containerName, "test", "-f", ReadySentinel)
			if check.Run() == nil {
				return nil
			}
		}
	}
}

// Attach execs command (or, if empty, an interactive shell) into a
// running container.
func Attach(ctx context.Context, containerName, shell string, command []string, interactive bool) error {
	args := []string{"exec"}
	if interactive {
		args = append(args, "-it")
	} else {
		args = append(args, "-i")
	}
	args = append(args, containerName)
	if len(command) > 0 {
		args = append(args, command...)
	} else {
		args = append(args, shell)
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}

	// A non-zero exit from the command running inside the container is
	// forwarded as-is (spec: "container exit status is forwarded as the
	// CLI exit status"), not reported as an attach failure — docker exec
	// itself succeeded in running the command.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ContainerExitError{Code: exitErr.ExitCode()}
	}

	return fmt.Errorf("%w: %v", ErrAttachFailed, err)
}

// StopAndRemove stops and removes a container, tolerating its absence.
func StopAndRemove(ctx context.Context, containerName string) error {
	_ = exec.CommandContext(ctx, "docker", "stop", containerName).Run()
	if out, err := exec.CommandContext(ctx, "docker", "rm", "-f", containerName).CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "No such container") {
			return nil
		}
		return fmt.Errorf("docker rm %s: %s", containerName, msg)
	}
	return nil
}

// RemoveVolume removes a single overlay volume by name, tolerating its
// absence (a sandbox created before the volume was ever realized, or one
// whose creation failed partway through, still needs a clean Delete).
func RemoveVolume(ctx context.Context, volumeName string) error {
	out, err := exec.CommandContext(ctx, "docker", "volume", "rm", volumeName).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "No such volume") {
			return nil
		}
		return fmt.Errorf("docker volume rm %s: %s", volumeName, msg)
	}
	return nil
}
