package sandboxlife

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock provides file-based mutual exclusion for a single sandbox name, so
// two `run` invocations against the same sandbox never create two
// containers or start two watchers.
type Lock struct {
	path string
	file *os.File
}

// lockFileName is the name of the lockfile within a sandbox's directory.
const lockFileName = ".lock"

// TryAcquireLock attempts to take the lock for sandboxHome without
// blocking, reclaiming it first if the PID recorded in an existing
// lockfile belongs to a process that is no longer alive. Returns ErrBusy
// if another live process holds it.
func TryAcquireLock(sandboxHome string) (*Lock, error) {
	path := fmt.Sprintf("%s/%s", sandboxHome, lockFileName)

	if err := reclaimStale(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("sandboxlife: open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}

	_ = file.Truncate(0)
	_, _ = file.WriteString(strconv.Itoa(os.Getpid()))
	_ = file.Sync()

	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lockfile.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return nil
}

// reclaimStale removes a lockfile left behind by a process that is no
// longer running.
func reclaimStale(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sandboxlife: read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(path)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		_ = os.Remove(path)
		return nil
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(path)
	}

	return nil
}
