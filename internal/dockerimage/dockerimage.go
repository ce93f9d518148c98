// Package dockerimage derives a content-addressed image tag from a
// Dockerfile and builds it on cache miss, passing the host user's
// identity as build arguments.
package dockerimage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"sandboxctl/internal/logging"
)

// ImagePrefix namespaces every image tag this tool builds.
const ImagePrefix = "sandboxctl"

// logTailLines bounds how much of a failed build's output we keep for the
// diagnostic message.
const logTailLines = 20

// Tag computes the content-addressed image tag for a Dockerfile: the hex
// sha256 of its bytes, prefixed so tags are recognizable in `docker images`.
func Tag(dockerfilePath string) (string, error) {
	data, err := os.ReadFile(dockerfilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrDockerfileMissing
		}
		return "", fmt.Errorf("dockerimage: read %s: %w", dockerfilePath, err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", ImagePrefix, hex.EncodeToString(sum[:])), nil
}

// Exists reports whether an image carrying tag is already present locally.
func Exists(ctx context.Context, tag string) (bool, error) {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", tag)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("dockerimage: docker image inspect %s: %w", tag, err)
	}
	return true, nil
}

// Identity is the host user triple baked into the image as build args.
type Identity struct {
	UserName string
	UID      int
	GID      int
}

// Build builds tag from dockerfilePath, passing identity as the
// USER_NAME/USER_ID/GROUP_ID build arguments the Dockerfile contract
// requires. The build context is the Dockerfile's containing directory.
func Build(ctx context.Context, dockerfilePath, tag string, identity Identity, logger *logging.ComponentLogger) error {
	if _, err := os.Stat(dockerfilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrDockerfileMissing
		}
		return fmt.Errorf("dockerimage: stat %s: %w", dockerfilePath, err)
	}

	buildContext := filepath.Dir(dockerfilePath)
	args := []string{
		"build",
		"-t", tag,
		"-f", dockerfilePath,
		"--build-arg", fmt.Sprintf("USER_NAME=%s", identity.UserName),
		"--build-arg", fmt.Sprintf("USER_ID=%d", identity.UID),
		"--build-arg", fmt.Sprintf("GROUP_ID=%d", identity.GID),
		buildContext,
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	tail := newRingBuffer(logTailLines)
	cmd.Stdout = io.MultiWriter(os.Stderr, tail)
	cmd.Stderr = cmd.Stdout

	if logger != nil {
		logger.Infof("building image %s from %s", tag, dockerfilePath)
	}

	err := cmd.Run()
	if err != nil {
		exitStatus := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitStatus = exitErr.ExitCode()
		}
		if logger != nil {
			logger.Errorf("build of %s failed: %v", tag, err)
		}
		return &BuildFailedError{ExitStatus: exitStatus, LogTail: tail.String()}
	}

	return nil
}

// EnsureBuilt builds the image for dockerfilePath only if no image with the
// derived tag already exists locally. It returns the resolved tag either way.
func EnsureBuilt(ctx context.Context, dockerfilePath string, identity Identity, logger *logging.ComponentLogger) (string, error) {
	tag, err := Tag(dockerfilePath)
	if err != nil {
		return "", err
	}

	exists, err := Exists(ctx, tag)
	if err != nil {
		return "", err
	}
	if exists {
		if logger != nil {
			logger.Infof("reusing image %s (cache hit)", tag)
		}
		return tag, nil
	}

	if err := Build(ctx, dockerfilePath, tag, identity, logger); err != nil {
		return "", err
	}
	return tag, nil
}

// ringBuffer keeps the last n lines written to it, for BuildFailedError's
// log tail.
type ringBuffer struct {
	lines []string
	n     int
	buf   strings.Builder
}

func newRingBuffer(n int) *ringBuffer {
	return &ringBuffer{n: n}
}

func (r *ringBuffer) Write(p []byte) (int, error) {
	r.buf.Write(p)
	scanner := bufio.NewScanner(strings.NewReader(r.buf.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) > r.n {
		lines = lines[len(lines)-r.n:]
	}
	r.lines = lines
	return len(p), nil
}

func (r *ringBuffer) String() string {
	return strings.Join(r.lines, "\n")
}
