// Package ratelimit bounds how often a caller may hit an endpoint.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the span over which requests are counted.
	DefaultWindow = time.Minute
	// DefaultMaxRequests is the number of requests allowed per window.
	DefaultMaxRequests = 30
)

// Limiter is a sliding-window limiter keyed by caller identity. It is safe for concurrent use.
type Limiter struct {
	window      time.Duration
	maxRequests int
	clock       func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// Config configures a Limiter. Zero values fall back to the defaults.
type Config struct {
	Window      time.Duration
	MaxRequests int
	Clock       func() time.Time
}

// New constructs a Limiter.
func New(cfg Config) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{
		window:      window,
		maxRequests: maxRequests,
		clock:       clock,
		hits:        make(map[string][]time.Time),
	}
}

// Allow records a request for key when it fits in the window.
// When it does not, the returned duration is how long until the oldest counted request expires.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.hits[key], cutoff)
	if len(recent) >= l.maxRequests {
		l.hits[key] = recent
		retryAfter := recent[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}
	l.hits[key] = append(recent, now)
	l.sweep(key, cutoff)
	return true, 0
}

// sweep drops keys whose windows have emptied, skipping the key just written.
func (l *Limiter) sweep(current string, cutoff time.Time) {
	for key, stamps := range l.hits {
		if key == current {
			continue
		}
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	index := 0
	for index < len(stamps) && !stamps[index].After(cutoff) {
		index++
	}
	return stamps[index:]
}
