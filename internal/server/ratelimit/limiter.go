// Package ratelimit counts requests per identity in fixed one-minute windows.
// The Redis counter is shared by every server instance; the in-memory one is
// used when no Redis address is configured.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key fits in the current
// window. When it does not, retryAfter is the time left until the window
// rolls over.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Window is the length of a counting window.
const Window = time.Minute

func windowStart(now time.Time) time.Time {
	return now.Truncate(Window)
}

func untilNextWindow(now time.Time) time.Duration {
	return windowStart(now).Add(Window).Sub(now)
}
