package volumegc

import "errors"

// ErrScanFailed wraps a failure to enumerate Docker volumes or containers
// during a GC sweep.
var ErrScanFailed = errors.New("gc scan failed")
