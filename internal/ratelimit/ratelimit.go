// Package ratelimit paces worker admissions so provider APIs are not
// hit in bursts that trigger rate-limit rejections.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides thread-safe admission pacing with a fixed interval
// between admissions.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // protects concurrent access to the limiter
}

// New creates a Limiter that admits one event per interval, with the
// given burst allowance. A non-positive interval disables pacing.
func New(interval time.Duration, burst int) *Limiter {
	if interval <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until the limiter admits an event or the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Wait(ctx)
}

// Update adjusts the admission interval and burst at runtime.
func (l *Limiter) Update(interval time.Duration, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if interval <= 0 {
		l.limiter.SetLimit(rate.Inf)
	} else {
		l.limiter.SetLimit(rate.Every(interval))
	}
	if burst < 1 {
		burst = 1
	}
	l.limiter.SetBurst(burst)
}
