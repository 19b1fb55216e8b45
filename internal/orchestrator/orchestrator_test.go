package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetracker/internal/config"
	"pricetracker/internal/model"
	"pricetracker/internal/scraper"
	"pricetracker/internal/store"
	"pricetracker/internal/validator"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentFetches:    2,
		RetryMaxAttempts:        3,
		RetryBackoffBase:        time.Millisecond,
		RetryBackoffCap:         2 * time.Millisecond,
		CycleTimeout:            5 * time.Second,
		RetailerMinDelay:        time.Millisecond,
		VarianceRejectPct:       50,
		PromoMinProducts:        3,
		PromoDeviationPct:       30,
		PromoWindow:             24 * time.Hour,
		CrossRetailerSpreadMult: 2,
		CircuitBreakerThreshold: 0.3,
		CircuitBreakerWindow:    20,
		KnownPromoAmounts:       []int64{70000},
	}
}

// memStorage is an in-memory Storage for cycle tests.
type memStorage struct {
	mu           sync.Mutex
	cat          *store.Catalog
	vctx         *validator.Context
	outcomes     map[string][]bool // newest first, per retailer
	observations []model.PriceObservation
	attempts     []model.ScrapeAttempt
}

func newMemStorage(targets ...model.RetailerTarget) *memStorage {
	cat := &store.Catalog{
		Products: make(map[string]model.Product),
		Bounds: map[string]model.CategoryBounds{
			"power-stations": {Category: "power-stations", MinPence: 8000, MaxPence: 600000},
		},
		Targets: targets,
	}
	for _, t := range targets {
		cat.Products[t.ProductID] = model.Product{ID: t.ProductID, Category: "power-stations"}
	}
	vctx := validator.NewContext()
	vctx.Bounds = cat.Bounds
	return &memStorage{cat: cat, vctx: vctx, outcomes: make(map[string][]bool)}
}

func (m *memStorage) LoadCatalog(ctx context.Context) (*store.Catalog, error) {
	return m.cat, nil
}

func (m *memStorage) BuildValidationContext(ctx context.Context, cat *store.Catalog, promoWindow, crossRetailerWindow time.Duration) (*validator.Context, error) {
	return m.vctx, nil
}

func (m *memStorage) InsertObservation(ctx context.Context, o model.PriceObservation) error {
	m.mu.Lock()
	m.observations = append(m.observations, o)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) InsertAttempt(ctx context.Context, a model.ScrapeAttempt) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) RecentOutcomes(ctx context.Context, retailerID string, n int) ([]bool, error) {
	return m.outcomes[retailerID], nil
}

func (m *memStorage) LatestPrices(ctx context.Context) ([]model.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := store.LatestByTarget(m.observations)
	out := make([]model.PriceObservation, 0, len(latest))
	for _, o := range latest {
		out = append(out, o)
	}
	return out, nil
}

func (m *memStorage) attemptStatuses(retailerID string) []model.AttemptStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttemptStatus
	for _, a := range m.attempts {
		if a.RetailerID == retailerID {
			out = append(out, a.Status)
		}
	}
	return out
}

// scriptAdapter serves every target through one scripted Fetch.
type scriptAdapter struct {
	mu    sync.Mutex
	calls map[string]int
	fetch func(ctx context.Context, t model.RetailerTarget, call int) (model.FetchResult, error)
}

func newScriptAdapter(fetch func(ctx context.Context, t model.RetailerTarget, call int) (model.FetchResult, error)) *scriptAdapter {
	return &scriptAdapter{calls: make(map[string]int), fetch: fetch}
}

func (a *scriptAdapter) Name() string { return "script" }

func (a *scriptAdapter) Fetch(ctx context.Context, t model.RetailerTarget) (model.FetchResult, error) {
	a.mu.Lock()
	call := a.calls[t.Key()]
	a.calls[t.Key()] = call + 1
	a.mu.Unlock()
	return a.fetch(ctx, t, call)
}

func (a *scriptAdapter) ForTarget(t model.RetailerTarget) scraper.Adapter { return a }

func (a *scriptAdapter) callCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *scriptAdapter) totalCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

type fakeGuard struct {
	mu     sync.Mutex
	sweeps int
}

func (g *fakeGuard) Sweep(maxAge time.Duration) int {
	g.mu.Lock()
	g.sweeps++
	g.mu.Unlock()
	return 0
}

func (g *fakeGuard) sweepCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweeps
}

func okFetch(pence int64) func(ctx context.Context, t model.RetailerTarget, call int) (model.FetchResult, error) {
	return func(ctx context.Context, t model.RetailerTarget, call int) (model.FetchResult, error) {
		return model.FetchResult{PricePence: pence, Currency: "GBP", InStock: true, FetchedAt: time.Now().UTC()}, nil
	}
}

func target(product, retailer string) model.RetailerTarget {
	return model.RetailerTarget{ProductID: product, RetailerID: retailer, URL: "https://example.com/" + product}
}

func newTestOrchestrator(cfg *config.Config, storage Storage, adapters AdapterSource, guard Guard) *Orchestrator {
	return New(cfg, storage, adapters, validator.New(cfg), guard, nil)
}

func TestCycleStoresAcceptedObservations(t *testing.T) {
	storage := newMemStorage(target("delta-2", "currys"), target("explorer-1000", "argos"))
	adapters := newScriptAdapter(okFetch(129900))
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Targets)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Zero(t, stats.Failed)

	require.Len(t, storage.observations, 2)
	for _, obs := range storage.observations {
		assert.Equal(t, model.StatusAccepted, obs.Status)
		assert.Equal(t, int64(129900), obs.PricePence)
	}
	assert.Equal(t, []model.AttemptStatus{model.AttemptSuccess}, storage.attemptStatuses("currys"))
}

func TestDuplicateTargetsFetchOnce(t *testing.T) {
	dup := target("delta-2", "currys")
	storage := newMemStorage(dup, dup, dup)
	adapters := newScriptAdapter(okFetch(129900))
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Targets)
	assert.Equal(t, 1, adapters.callCount(dup.Key()))
}

func TestRetriesNetworkErrorThenSucceeds(t *testing.T) {
	storage := newMemStorage(target("delta-2", "currys"))
	adapters := newScriptAdapter(func(ctx context.Context, tg model.RetailerTarget, call int) (model.FetchResult, error) {
		if call < 2 {
			return model.FetchResult{}, model.NewFetchError(model.NetworkError, errors.New("connection reset"))
		}
		return model.FetchResult{PricePence: 129900, Currency: "GBP", InStock: true, FetchedAt: time.Now().UTC()}, nil
	})
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 3, adapters.callCount("delta-2@currys"))
	assert.Equal(t,
		[]model.AttemptStatus{model.AttemptError, model.AttemptError, model.AttemptSuccess},
		storage.attemptStatuses("currys"))
}

func TestParseErrorGivesUpAfterMaxAttempts(t *testing.T) {
	storage := newMemStorage(target("delta-2", "currys"))
	adapters := newScriptAdapter(func(ctx context.Context, tg model.RetailerTarget, call int) (model.FetchResult, error) {
		return model.FetchResult{}, model.NewFetchError(model.ParseError, errors.New("selector not found"))
	})
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, adapters.callCount("delta-2@currys"))
	assert.Equal(t,
		[]model.AttemptStatus{model.AttemptNotFound, model.AttemptNotFound, model.AttemptNotFound},
		storage.attemptStatuses("currys"))
	assert.Empty(t, storage.observations)
}

// BlockedError skips per-target retry and cools the whole retailer down for
// the rest of the cycle; targets at other retailers proceed normally.
func TestBlockedErrorCoolsDownRetailer(t *testing.T) {
	storage := newMemStorage(
		target("delta-2", "ecoflow_uk"),
		target("river-2", "ecoflow_uk"),
		target("explorer-1000", "currys"),
	)
	adapters := newScriptAdapter(func(ctx context.Context, tg model.RetailerTarget, call int) (model.FetchResult, error) {
		if tg.RetailerID == "ecoflow_uk" {
			return model.FetchResult{}, model.NewFetchError(model.BlockedError, errors.New("captcha wall"))
		}
		return okFetch(79900)(ctx, tg, call)
	})
	cfg := testConfig()
	cfg.MaxConcurrentFetches = 1 // deterministic ordering
	o := newTestOrchestrator(cfg, storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	// Only the first ecoflow target ever reached the adapter.
	assert.Equal(t, 1, adapters.callCount("delta-2@ecoflow_uk")+adapters.callCount("river-2@ecoflow_uk"))
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Succeeded)

	statuses := storage.attemptStatuses("ecoflow_uk")
	assert.Contains(t, statuses, model.AttemptError)
	assert.Contains(t, statuses, model.AttemptCooldown)
}

// A retailer whose last 20 attempts were failures starts the cycle with an
// open breaker: its targets are skipped as circuit_open without a single
// fetch, while other retailers are unaffected.
func TestCircuitBreakerSkipsFailingRetailer(t *testing.T) {
	storage := newMemStorage(
		target("delta-2", "flaky"),
		target("river-2", "flaky"),
		target("explorer-1000", "currys"),
	)
	failures := make([]bool, 20)
	storage.outcomes["flaky"] = failures

	adapters := newScriptAdapter(okFetch(129900))
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, adapters.callCount("delta-2@flaky"))
	assert.Equal(t, 0, adapters.callCount("river-2@flaky"))
	assert.Equal(t, 1, adapters.callCount("explorer-1000@currys"))
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Succeeded)

	assert.Equal(t,
		[]model.AttemptStatus{model.AttemptCircuitOpen, model.AttemptCircuitOpen},
		storage.attemptStatuses("flaky"))
}

func TestBreakerStaysClosedOnPartialWindow(t *testing.T) {
	storage := newMemStorage(target("delta-2", "flaky"))
	storage.outcomes["flaky"] = make([]bool, 10) // 10 failures, window is 20

	adapters := newScriptAdapter(okFetch(129900))
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, adapters.callCount("delta-2@flaky"))
}

// Rate limiting is a per-retailer budget, not a global one: two retailers
// with three targets each finish in the time one retailer needs for three
// paced fetches, not the time six globally paced fetches would take.
func TestRateLimitersAreIndependentPerRetailer(t *testing.T) {
	storage := newMemStorage(
		target("delta-2", "currys"),
		target("explorer-1000", "argos"),
		target("river-2", "currys"),
		target("explorer-500", "argos"),
		target("delta-pro", "currys"),
		target("explorer-2000", "argos"),
	)
	adapters := newScriptAdapter(okFetch(129900))
	cfg := testConfig()
	cfg.RetryMaxAttempts = 1
	cfg.RetailerMinDelay = 200 * time.Millisecond

	o := newTestOrchestrator(cfg, storage, adapters, &fakeGuard{})

	started := time.Now()
	stats, err := o.Cycle(context.Background())
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Succeeded)
	assert.Equal(t, 6, adapters.totalCalls())

	// Three paced fetches per retailer cost two 200ms waits. A shared
	// limiter across both retailers would need five, i.e. at least 1s.
	assert.Less(t, elapsed, 800*time.Millisecond,
		"targets at one retailer were delayed behind another retailer's pacing")
}

// An anomalous drop is rejected by policy but still persisted for review.
func TestRejectedObservationIsPersisted(t *testing.T) {
	tg := target("delta-2", "currys")
	storage := newMemStorage(tg)
	storage.vctx.History[tg.Key()] = validator.TargetHistory{MedianPence: 90000, Count: 5}

	adapters := newScriptAdapter(okFetch(40000)) // >50% below the median
	o := newTestOrchestrator(testConfig(), storage, adapters, &fakeGuard{})

	stats, err := o.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Rejected)
	assert.Zero(t, stats.Succeeded)

	require.Len(t, storage.observations, 1)
	obs := storage.observations[0]
	assert.Equal(t, model.StatusRejected, obs.Status)
	assert.Equal(t, model.AnomalousDrop, obs.RejectReason)
	assert.Equal(t, []model.AttemptStatus{model.AttemptRejected}, storage.attemptStatuses("currys"))
}

// The cycle ceiling cancels outstanding workers and the guard is swept both
// before and after the pool runs.
func TestCycleTimeoutCancelsWorkers(t *testing.T) {
	storage := newMemStorage(
		target("delta-2", "currys"),
		target("river-2", "currys"),
		target("explorer-1000", "currys"),
	)
	adapters := newScriptAdapter(func(ctx context.Context, tg model.RetailerTarget, call int) (model.FetchResult, error) {
		<-ctx.Done()
		return model.FetchResult{}, model.NewFetchError(model.NetworkError, ctx.Err())
	})
	cfg := testConfig()
	cfg.CycleTimeout = 50 * time.Millisecond
	cfg.MaxConcurrentFetches = 1
	guard := &fakeGuard{}
	o := newTestOrchestrator(cfg, storage, adapters, guard)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.Cycle(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not respect its timeout")
	}
	assert.GreaterOrEqual(t, guard.sweepCount(), 2)
	assert.Empty(t, storage.observations)
}

func TestBreakerRing(t *testing.T) {
	b := newBreaker(4, 0.5)
	assert.False(t, b.open(), "unfilled window must not open")

	b.seed([]bool{true, true, false, false})
	assert.False(t, b.open(), "50% is not below 0.5")

	b.record(false)
	assert.True(t, b.open(), "25% is below 0.5")

	b.record(true)
	b.record(true)
	b.record(true)
	assert.False(t, b.open(), "recovered window closes again")
}

// The breaker opens strictly below the threshold: a success rate exactly at
// it keeps the retailer scheduled.
func TestBreakerStaysClosedAtExactThreshold(t *testing.T) {
	at := newBreaker(20, 0.3)
	outcomes := make([]bool, 20)
	for i := 0; i < 6; i++ { // 6/20 = 0.30
		outcomes[i] = true
	}
	at.seed(outcomes)
	assert.False(t, at.open())

	below := newBreaker(20, 0.3)
	outcomes[5] = false // 5/20 = 0.25
	below.seed(outcomes)
	assert.True(t, below.open())
}
