package gitclone

import "errors"

// ErrCloneFailed wraps a failure to create the shallow clone.
var ErrCloneFailed = errors.New("clone failed")

// ErrRemoteConfigFailed wraps a failure to reconcile git remotes between
// the host repo and its clone.
var ErrRemoteConfigFailed = errors.New("remote configuration failed")
