package sqlstore

import "github.com/goliatone/go-attest/throttle"

var (
	_ throttle.StateStore = (*ThrottleStateStore)(nil)
	_ throttle.StateStore = (*CachedThrottleStateStore)(nil)
)
