// Package server implements per-connection throttling that protects the
// relay from clients flooding frames.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows capacity frames per interval with a burst of
// capacity.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	limit := rate.Limit(float64(capacity) / interval.Seconds())
	if limit <= 0 {
		limit = rate.Limit(capacity)
	}
	return rate.NewLimiter(limit, capacity)
}
