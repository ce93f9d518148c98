package syncwatch

import "errors"

// ErrWatcherFailed wraps a failure to start the filesystem watcher.
var ErrWatcherFailed = errors.New("watcher failed")
