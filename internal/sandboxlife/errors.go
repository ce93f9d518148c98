package sandboxlife

import (
	"errors"
	"fmt"
)

// ErrUnknownSandbox is returned when an operation names a sandbox with no
// metadata on disk.
var ErrUnknownSandbox = errors.New("unknown sandbox")

// ErrBusy is returned when a sandbox's lock is held by another live
// process.
var ErrBusy = errors.New("sandbox busy")

// ErrRuntimeUnavailable is returned when the container runtime (docker)
// cannot be reached.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// ErrContainerStartFailed is returned when docker create/start fails, or
// the readiness sentinel never appears.
var ErrContainerStartFailed = errors.New("container start failed")

// ErrAttachFailed is returned when exec into an already-running container
// fails.
var ErrAttachFailed = errors.New("attach failed")

// ErrMountSetupFailed is returned when a mount entry cannot be realized
// (missing required source, overlay volume creation failure, ...).
var ErrMountSetupFailed = errors.New("mount setup failed")

// ContainerExitError carries the exit status of the command that ran
// inside the container, so the CLI can mirror it instead of reporting a
// setup failure. Not a diagnostic — a clean forwarding of the guest
// process's own exit code.
type ContainerExitError struct {
	Code int
}

func (e *ContainerExitError) Error() string {
	return fmt.Sprintf("container process exited with status %d", e.Code)
}
