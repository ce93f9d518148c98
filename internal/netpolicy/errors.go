package netpolicy

import "errors"

// ErrNetworkSetupFailed wraps a failure to create or inspect the
// sandbox's internal Docker network.
var ErrNetworkSetupFailed = errors.New("network setup failed")
