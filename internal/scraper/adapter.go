// Package scraper holds the retailer adapters: everything retailer-specific
// lives behind the Adapter interface so the orchestrator never depends on
// how a given site is scraped.
package scraper

import (
	"context"

	"pricetracker/internal/model"
)

// Adapter fetches one product page and extracts a candidate price and stock
// status. Failures are *model.FetchError so the orchestrator can classify
// them for retry.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, target model.RetailerTarget) (model.FetchResult, error)
}

// Registry picks the adapter for a target. Retailers with a dedicated
// adapter get it; otherwise JS-heavy targets go headless and the rest use
// plain HTTP. New retailers are added by registering an adapter, not by
// touching the orchestrator.
type Registry struct {
	byRetailer map[string]Adapter
	http       Adapter
	headless   Adapter
}

func NewRegistry(httpAdapter, headlessAdapter Adapter) *Registry {
	return &Registry{
		byRetailer: make(map[string]Adapter),
		http:       httpAdapter,
		headless:   headlessAdapter,
	}
}

func (r *Registry) Register(retailerID string, a Adapter) {
	r.byRetailer[retailerID] = a
}

func (r *Registry) ForTarget(t model.RetailerTarget) Adapter {
	if a, ok := r.byRetailer[t.RetailerID]; ok {
		return a
	}
	if t.RenderJS && r.headless != nil {
		return r.headless
	}
	return r.http
}
