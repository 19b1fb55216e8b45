package orchestrator

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"pricetracker/internal/model"
	"pricetracker/internal/observability"
	"pricetracker/internal/store"
	"pricetracker/internal/validator"
)

// processTarget owns one target end to end: fetch (with retries), validate,
// store. It is the only writer for its (product, retailer) pair this cycle.
func (o *Orchestrator) processTarget(ctx context.Context, cat *store.Catalog, vctx *validator.Context, t model.RetailerTarget, stats *cycleStats) {
	st := o.retailer(t.RetailerID)
	adapter := o.adapters.ForTarget(t)

	for attempt := 0; attempt < o.maxAttempts(); attempt++ {
		if ctx.Err() != nil {
			return
		}

		if st.breaker.open() {
			if st.markAlerted() {
				log.Printf("orchestrator: circuit open for %s, skipping its remaining targets this cycle", t.RetailerID)
				observability.CircuitOpens.WithLabelValues(t.RetailerID).Inc()
			}
			o.recordAttempt(ctx, t, model.AttemptCircuitOpen, "circuit breaker open", 0)
			stats.add(func(s *cycleStats) { s.skipped++ })
			return
		}

		if st.cooledDown(o.now()) {
			o.recordAttempt(ctx, t, model.AttemptCooldown, "retailer cooling down after block", 0)
			stats.add(func(s *cycleStats) { s.skipped++ })
			return
		}

		if err := st.limiter.Wait(ctx); err != nil {
			return
		}

		started := o.now()
		res, err := adapter.Fetch(ctx, t)
		elapsed := o.now().Sub(started).Milliseconds()

		if err == nil {
			o.storeResult(ctx, cat, vctx, t, res, elapsed, st, stats)
			return
		}

		var fe *model.FetchError
		if !errors.As(err, &fe) {
			fe = model.NewFetchError(model.NetworkError, err)
		}
		st.breaker.record(false)

		switch fe.Kind {
		case model.BlockedError:
			// No per-target retry; back the whole retailer off for the
			// remainder of the cycle.
			st.coolDown(o.now().Add(o.cfg.CycleTimeout))
			log.Printf("orchestrator: %s blocked us (%v), cooling down retailer", t.RetailerID, fe.Err)
			o.recordAttempt(ctx, t, model.AttemptError, fe.Error(), elapsed)
			stats.add(func(s *cycleStats) { s.failed++ })
			return
		case model.ParseError:
			o.recordAttempt(ctx, t, model.AttemptNotFound, fe.Error(), elapsed)
		default:
			o.recordAttempt(ctx, t, model.AttemptError, fe.Error(), elapsed)
		}

		if attempt+1 < o.maxAttempts() {
			if !o.sleepBackoff(ctx, attempt) {
				return
			}
			continue
		}
		log.Printf("orchestrator: %s gave up after %d attempts: %v", t.Key(), o.maxAttempts(), fe)
		stats.add(func(s *cycleStats) { s.failed++ })
	}
}

func (o *Orchestrator) storeResult(ctx context.Context, cat *store.Catalog, vctx *validator.Context, t model.RetailerTarget, res model.FetchResult, elapsed int64, st *retailerState, stats *cycleStats) {
	vr := o.validator.Validate(vctx, cat.Products[t.ProductID], t, res)

	obs := model.PriceObservation{
		ID:         uuid.New().String(),
		ProductID:  t.ProductID,
		RetailerID: t.RetailerID,
		PricePence: res.PricePence,
		Currency:   res.Currency,
		InStock:    res.InStock,
		ObservedAt: res.FetchedAt,
		RawURL:     t.URL,
		Flags:      vr.Flags,
	}
	if vr.Accepted {
		obs.Status = model.StatusAccepted
	} else {
		obs.Status = model.StatusRejected
		obs.RejectReason = vr.Reason
	}

	if err := o.storage.InsertObservation(ctx, obs); err != nil {
		log.Printf("orchestrator: store observation %s: %v", t.Key(), err)
		o.recordAttempt(ctx, t, model.AttemptError, "store: "+err.Error(), elapsed)
		stats.add(func(s *cycleStats) { s.failed++ })
		return
	}

	// A rejected price still means the retailer answered properly.
	st.breaker.record(true)
	observability.ValidationsTotal.WithLabelValues(string(vr.Reason)).Inc()

	if vr.Accepted {
		o.recordAttempt(ctx, t, model.AttemptSuccess, "", elapsed)
		stats.add(func(s *cycleStats) { s.succeeded++ })
		log.Printf("orchestrator: %s: £%s (%s)", t.Key(), model.FormatPence(res.PricePence), stockWord(res.InStock))
	} else {
		o.recordAttempt(ctx, t, model.AttemptRejected, string(vr.Reason), elapsed)
		stats.add(func(s *cycleStats) { s.rejected++ })
		log.Printf("orchestrator: %s: £%s rejected (%s)", t.Key(), model.FormatPence(res.PricePence), vr.Reason)
	}
}

func (o *Orchestrator) recordAttempt(ctx context.Context, t model.RetailerTarget, status model.AttemptStatus, detail string, elapsed int64) {
	observability.ScrapesTotal.WithLabelValues(t.RetailerID, string(status)).Inc()
	err := o.storage.InsertAttempt(ctx, model.ScrapeAttempt{
		ID:             uuid.New().String(),
		RetailerID:     t.RetailerID,
		ProductID:      t.ProductID,
		Status:         status,
		ErrorDetail:    detail,
		ResponseTimeMs: elapsed,
		AttemptedAt:    o.now().UTC(),
	})
	if err != nil {
		log.Printf("orchestrator: record attempt %s: %v", t.Key(), err)
	}
}

func (o *Orchestrator) maxAttempts() int {
	if o.cfg.RetryMaxAttempts <= 0 {
		return 1
	}
	return o.cfg.RetryMaxAttempts
}

// sleepBackoff waits base<<attempt capped at the configured ceiling, plus a
// little jitter. Returns false if the context died while waiting.
func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) bool {
	d := o.cfg.RetryBackoffBase << uint(attempt)
	if o.cfg.RetryBackoffCap > 0 && d > o.cfg.RetryBackoffCap {
		d = o.cfg.RetryBackoffCap
	}
	d += time.Duration(rand.Intn(250)) * time.Millisecond

	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func stockWord(inStock bool) string {
	if inStock {
		return "in stock"
	}
	return "out of stock"
}
