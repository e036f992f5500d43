package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter, sets the window on the first
// hit and answers 1 when the request fits the limit.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// Window is a Redis fixed-window counter. The increment and the first-hit
// expiry run atomically in one script.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	script *redis.Script
}

// NewWindow returns nil for a nil client; a nil Window allows everything.
func NewWindow(client redis.UniversalClient, prefix string) *Window {
	if client == nil {
		return nil
	}
	return &Window{
		redis:  client,
		prefix: prefix,
		script: redis.NewScript(fixedWindowScript),
	}
}

// Allow counts one hit against key. It returns ErrRateLimited once more than
// limit hits land inside window, and ErrRedisUnavailable when the counter
// cannot be read. A non-positive limit or window disables the check.
func (w *Window) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	if w == nil || key == "" || limit <= 0 || window <= 0 {
		return nil
	}

	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	allowed, err := w.script.Run(ctx, w.redis, []string{w.key(key)}, ttl, limit).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if allowed != 1 {
		return ErrRateLimited
	}
	return nil
}

// Count returns the hits recorded in the current window.
func (w *Window) Count(ctx context.Context, key string) (int, error) {
	if w == nil {
		return 0, nil
	}
	n, err := w.redis.Get(ctx, w.key(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Reset clears the counter for key.
func (w *Window) Reset(ctx context.Context, key string) error {
	if w == nil {
		return nil
	}
	if err := w.redis.Del(ctx, w.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (w *Window) key(key string) string {
	if w.prefix == "" {
		return key
	}
	return w.prefix + ":" + key
}
