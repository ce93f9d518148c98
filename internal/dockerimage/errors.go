package dockerimage

import (
	"errors"
	"fmt"
)

// ErrDockerfileMissing is returned when the expected Dockerfile path does
// not exist.
var ErrDockerfileMissing = errors.New("dockerfile missing")

// BuildFailedError carries the exit status and trailing build log when a
// Docker build fails, so callers can surface a single concise diagnostic
// line naming the most actionable cause.
type BuildFailedError struct {
	ExitStatus int
	LogTail    string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("BuildFailed: exit %d, last lines follow:\n%s", e.ExitStatus, e.LogTail)
}
