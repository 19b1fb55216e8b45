package orchestrator

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// retailerState is the only per-retailer shared mutable state in a cycle:
// the rate-limit token, the cooldown deadline and the breaker ring. Each
// retailer is an independent rate domain.
type retailerState struct {
	limiter *rate.Limiter
	breaker *breaker

	mu            sync.Mutex
	cooldownUntil time.Time
	alerted       bool
}

func newRetailerState(minDelay time.Duration, breakerWindow int, breakerThreshold float64) *retailerState {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	return &retailerState{
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
		breaker: newBreaker(breakerWindow, breakerThreshold),
	}
}

func (s *retailerState) coolDown(until time.Time) {
	s.mu.Lock()
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
	s.mu.Unlock()
}

func (s *retailerState) cooledDown(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.cooldownUntil)
}

// markAlerted returns true the first time the breaker opens for this
// retailer, so the health alert fires once per cycle.
func (s *retailerState) markAlerted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerted {
		return false
	}
	s.alerted = true
	return true
}
