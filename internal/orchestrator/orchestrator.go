// Package orchestrator drives scrape cycles: it fans the catalog's targets
// out to a bounded worker pool, applies per-retailer rate limits, retries
// with backoff, circuit-breaks persistently failing retailers, and makes
// sure no browser process survives a cycle.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pricetracker/internal/config"
	"pricetracker/internal/model"
	"pricetracker/internal/observability"
	"pricetracker/internal/scraper"
	"pricetracker/internal/store"
	"pricetracker/internal/validator"
)

// Storage is the slice of the store the orchestrator needs. *store.Store
// satisfies it; tests use an in-memory fake.
type Storage interface {
	LoadCatalog(ctx context.Context) (*store.Catalog, error)
	BuildValidationContext(ctx context.Context, cat *store.Catalog, promoWindow, crossRetailerWindow time.Duration) (*validator.Context, error)
	InsertObservation(ctx context.Context, o model.PriceObservation) error
	InsertAttempt(ctx context.Context, a model.ScrapeAttempt) error
	RecentOutcomes(ctx context.Context, retailerID string, n int) ([]bool, error)
	LatestPrices(ctx context.Context) ([]model.PriceObservation, error)
}

// AdapterSource resolves the adapter for a target. *scraper.Registry
// satisfies it.
type AdapterSource interface {
	ForTarget(t model.RetailerTarget) scraper.Adapter
}

// Guard is the process-guard surface the orchestrator uses.
type Guard interface {
	Sweep(maxAge time.Duration) int
}

// Publisher pushes the latest-price projection to external consumers.
type Publisher interface {
	PublishLatest(ctx context.Context, latest []model.PriceObservation) error
}

// Stats summarizes one cycle for logging and health reporting.
type Stats struct {
	Targets   int
	Succeeded int
	Rejected  int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

type Orchestrator struct {
	cfg       *config.Config
	storage   Storage
	adapters  AdapterSource
	validator *validator.Validator
	guard     Guard
	publisher Publisher // optional

	mu        sync.Mutex
	retailers map[string]*retailerState

	now func() time.Time
}

func New(cfg *config.Config, storage Storage, adapters AdapterSource, v *validator.Validator, guard Guard, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		storage:   storage,
		adapters:  adapters,
		validator: v,
		guard:     guard,
		publisher: publisher,
		retailers: make(map[string]*retailerState),
		now:       time.Now,
	}
}

// Run executes cycles on a ticker until ctx is cancelled, with an immediate
// first pass.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.cfg.ScrapeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("orchestrator: started, interval %v", interval)

	o.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("orchestrator: stopping, context cancelled")
			return
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	if _, err := o.Cycle(ctx); err != nil {
		log.Printf("orchestrator: cycle failed: %v", err)
	}
}

// Cycle runs one full pass over the catalog. A cycle that ends with partial
// coverage is not a failure; coverage shows up in the stats and the attempt
// log instead.
func (o *Orchestrator) Cycle(ctx context.Context) (Stats, error) {
	start := o.now()

	// A new cycle never starts with leftover resources from a prior one.
	if killed := o.guard.Sweep(0); killed > 0 {
		log.Printf("orchestrator: resource leak detected, terminated %d leftover browser processes", killed)
		observability.GuardKills.Add(float64(killed))
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	cat, err := o.storage.LoadCatalog(cctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load catalog: %w", err)
	}
	vctx, err := o.storage.BuildValidationContext(cctx, cat, o.cfg.PromoWindow, o.cfg.PromoWindow)
	if err != nil {
		return Stats{}, fmt.Errorf("build validation context: %w", err)
	}

	targets := dedupeTargets(cat.Targets)
	o.resetRetailers(cctx, targets)

	log.Printf("orchestrator: cycle started, %d targets, %d workers", len(targets), o.cfg.MaxConcurrentFetches)

	stats := &cycleStats{}
	jobs := make(chan model.RetailerTarget)
	var wg sync.WaitGroup
	workers := o.cfg.MaxConcurrentFetches
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				o.processTarget(cctx, cat, vctx, t, stats)
			}
		}()
	}

feed:
	for _, t := range targets {
		select {
		case <-cctx.Done():
			break feed
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()

	// Backstop: anything still tracked after the pool drained is a caller
	// bug or a cancelled worker; terminate it now.
	if killed := o.guard.Sweep(0); killed > 0 {
		log.Printf("orchestrator: terminated %d browser processes at cycle end", killed)
		observability.GuardKills.Add(float64(killed))
	}

	o.publishLatest(ctx)

	out := stats.snapshot()
	out.Targets = len(targets)
	out.Duration = o.now().Sub(start)
	observability.CycleDuration.Set(out.Duration.Seconds())

	rate := 0.0
	if out.Targets > 0 {
		rate = float64(out.Succeeded) / float64(out.Targets) * 100
	}
	log.Printf("orchestrator: cycle completed: %d/%d successful (%.1f%%), %d rejected, %d failed, %d skipped, took %v",
		out.Succeeded, out.Targets, rate, out.Rejected, out.Failed, out.Skipped, out.Duration.Round(time.Millisecond))

	return out, nil
}

func (o *Orchestrator) publishLatest(ctx context.Context) {
	if o.publisher == nil {
		return
	}
	// Deliberately on the parent context: publication should still happen
	// when the cycle hit its ceiling.
	latest, err := o.storage.LatestPrices(ctx)
	if err != nil {
		log.Printf("orchestrator: load latest prices: %v", err)
		return
	}
	if err := o.publisher.PublishLatest(ctx, latest); err != nil {
		log.Printf("orchestrator: publish latest prices: %v", err)
	}
}

// resetRetailers rebuilds per-retailer state for the new cycle and seeds
// each breaker from the attempt log, so a retailer that burned its whole
// window last cycle does not start this one trusted.
func (o *Orchestrator) resetRetailers(ctx context.Context, targets []model.RetailerTarget) {
	o.mu.Lock()
	o.retailers = make(map[string]*retailerState)
	o.mu.Unlock()

	seen := make(map[string]bool)
	for _, t := range targets {
		if seen[t.RetailerID] {
			continue
		}
		seen[t.RetailerID] = true

		st := o.retailer(t.RetailerID)
		outcomes, err := o.storage.RecentOutcomes(ctx, t.RetailerID, o.cfg.CircuitBreakerWindow)
		if err != nil {
			log.Printf("orchestrator: seed breaker for %s: %v", t.RetailerID, err)
			continue
		}
		// RecentOutcomes is newest first; the ring wants oldest first.
		for i := len(outcomes) - 1; i >= 0; i-- {
			st.breaker.record(outcomes[i])
		}
	}
}

func (o *Orchestrator) retailer(id string) *retailerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.retailers[id]
	if !ok {
		st = newRetailerState(o.cfg.RetailerMinDelay, o.cfg.CircuitBreakerWindow, o.cfg.CircuitBreakerThreshold)
		o.retailers[id] = st
	}
	return st
}

// dedupeTargets guarantees at most one in-flight fetch per
// (product, retailer) pair within a cycle.
func dedupeTargets(targets []model.RetailerTarget) []model.RetailerTarget {
	seen := make(map[string]bool, len(targets))
	out := make([]model.RetailerTarget, 0, len(targets))
	for _, t := range targets {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	return out
}

type cycleStats struct {
	mu        sync.Mutex
	succeeded int
	rejected  int
	failed    int
	skipped   int
}

func (s *cycleStats) add(f func(*cycleStats)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
}

func (s *cycleStats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Succeeded: s.succeeded, Rejected: s.rejected, Failed: s.failed, Skipped: s.skipped}
}
