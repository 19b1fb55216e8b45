package store

import (
	"pricetracker/internal/model"
)

// LatestByTarget reduces a set of observations to the newest accepted one
// per (product, retailer). Same semantics as the SQL projection in
// LatestPrices; kept as a pure function so the cache publisher and tests can
// run it over in-memory data.
func LatestByTarget(observations []model.PriceObservation) map[string]model.PriceObservation {
	latest := make(map[string]model.PriceObservation)
	for _, o := range observations {
		if o.Status != model.StatusAccepted {
			continue
		}
		key := o.ProductID + "@" + o.RetailerID
		cur, ok := latest[key]
		if !ok || o.ObservedAt.After(cur.ObservedAt) {
			latest[key] = o
		}
	}
	return latest
}
