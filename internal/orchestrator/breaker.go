package orchestrator

import "sync"

// breaker tracks the trailing fetch outcomes for one retailer in a fixed
// ring. It opens when a full window's success rate falls below the
// threshold, and stays open for the remainder of the cycle.
type breaker struct {
	mu        sync.Mutex
	window    []bool
	idx       int
	filled    int
	threshold float64
}

func newBreaker(windowSize int, threshold float64) *breaker {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &breaker{window: make([]bool, windowSize), threshold: threshold}
}

func (b *breaker) record(ok bool) {
	b.mu.Lock()
	b.window[b.idx] = ok
	b.idx = (b.idx + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
	b.mu.Unlock()
}

// open reports whether the retailer should stop receiving new fetches.
// An unfilled window never opens: a retailer gets a full window of chances
// before it is judged.
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filled < len(b.window) {
		return false
	}
	successes := 0
	for _, ok := range b.window {
		if ok {
			successes++
		}
	}
	return float64(successes)/float64(b.filled) < b.threshold
}

// seed preloads outcomes, oldest first, from a prior cycle's attempt log.
func (b *breaker) seed(outcomes []bool) {
	for _, ok := range outcomes {
		b.record(ok)
	}
}
