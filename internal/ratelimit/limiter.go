// Package ratelimit throttles job submissions per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	perHour  int
}

// NewLimiter creates a limiter allowing requestsPerHour per client with
// bursts of up to burst submissions
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / time.Hour.Seconds()),
		burst:    burst,
		perHour:  requestsPerHour,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow consumes a token for key if one is available
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Remaining returns the whole tokens left for key
func (l *Limiter) Remaining(key string) int {
	tokens := l.get(key).Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// PerHour is the configured sustained rate
func (l *Limiter) PerHour() int {
	return l.perHour
}
