package store

import (
	"context"
	"fmt"
	"time"

	"pricetracker/internal/validator"
)

// historyWindow bounds how far back the variance rule looks.
const historyWindow = 30 * 24 * time.Hour

// BuildValidationContext populates the validator's snapshot from the store,
// once per cycle. The validator itself never touches the database.
func (s *Store) BuildValidationContext(ctx context.Context, cat *Catalog, promoWindow, crossRetailerWindow time.Duration) (*validator.Context, error) {
	vctx := validator.NewContext()
	now := time.Now().UTC()

	for category, b := range cat.Bounds {
		vctx.Bounds[category] = b
	}

	// Per-target trailing median and count of accepted observations.
	rows, err := s.db.Query(ctx, `
		SELECT product_id, retailer_id,
		       percentile_disc(0.5) WITHIN GROUP (ORDER BY price_pence)::bigint,
		       COUNT(*)
		FROM price_observations
		WHERE validation_status = 'accepted' AND observed_at >= $1
		GROUP BY product_id, retailer_id
	`, now.Add(-historyWindow))
	if err != nil {
		return nil, fmt.Errorf("load target history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, retailerID string
		var h validator.TargetHistory
		if err := rows.Scan(&productID, &retailerID, &h.MedianPence, &h.Count); err != nil {
			return nil, fmt.Errorf("scan target history: %w", err)
		}
		vctx.History[productID+"@"+retailerID] = h
	}
	rows.Close()

	// Distinct products per exact price per retailer inside the promo
	// window. Rejected rows count too: a banner that was caught yesterday
	// is still a banner today.
	rows, err = s.db.Query(ctx, `
		SELECT retailer_id, price_pence, COUNT(DISTINCT product_id)
		FROM price_observations
		WHERE observed_at >= $1
		GROUP BY retailer_id, price_pence
	`, now.Add(-promoWindow))
	if err != nil {
		return nil, fmt.Errorf("load promo counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var retailerID string
		var pence int64
		var count int
		if err := rows.Scan(&retailerID, &pence, &count); err != nil {
			return nil, fmt.Errorf("scan promo count: %w", err)
		}
		byPrice, ok := vctx.RetailerPriceProducts[retailerID]
		if !ok {
			byPrice = make(map[int64]int)
			vctx.RetailerPriceProducts[retailerID] = byPrice
		}
		byPrice[pence] = count
	}
	rows.Close()

	// Latest accepted price per retailer per product inside the
	// cross-retailer comparison window.
	rows, err = s.db.Query(ctx, `
		SELECT DISTINCT ON (product_id, retailer_id) product_id, retailer_id, price_pence
		FROM price_observations
		WHERE validation_status = 'accepted' AND observed_at >= $1
		ORDER BY product_id, retailer_id, observed_at DESC
	`, now.Add(-crossRetailerWindow))
	if err != nil {
		return nil, fmt.Errorf("load current prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, retailerID string
		var pence int64
		if err := rows.Scan(&productID, &retailerID, &pence); err != nil {
			return nil, fmt.Errorf("scan current price: %w", err)
		}
		byRetailer, ok := vctx.CurrentPrices[productID]
		if !ok {
			byRetailer = make(map[string]int64)
			vctx.CurrentPrices[productID] = byRetailer
		}
		byRetailer[retailerID] = pence
	}
	return vctx, rows.Err()
}
