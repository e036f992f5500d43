package rate

import "errors"

var (
	// ErrRateLimited reports that a fixed window is full.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
