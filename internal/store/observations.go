package store

import (
	"context"
	"fmt"
	"time"

	"pricetracker/internal/model"
)

func (s *Store) InsertObservation(ctx context.Context, o model.PriceObservation) error {
	flags := make([]string, len(o.Flags))
	for i, f := range o.Flags {
		flags[i] = string(f)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_observations
		(id, product_id, retailer_id, price_pence, currency, in_stock, observed_at, raw_url, validation_status, reject_reason, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.ProductID, o.RetailerID, o.PricePence, o.Currency, o.InStock,
		o.ObservedAt, o.RawURL, string(o.Status), string(o.RejectReason), flags)
	if err != nil {
		return fmt.Errorf("insert observation %s/%s: %w", o.ProductID, o.RetailerID, err)
	}
	return nil
}

// LatestPrices returns the accepted observation with max(observed_at) per
// (product, retailer), regardless of insertion order. Late arrivals are
// inserted like any row; this projection always picks the newest timestamp.
func (s *Store) LatestPrices(ctx context.Context) ([]model.PriceObservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (product_id, retailer_id)
		       id, product_id, retailer_id, price_pence, currency, in_stock, observed_at, raw_url, validation_status, reject_reason, flags
		FROM price_observations
		WHERE validation_status = 'accepted'
		ORDER BY product_id, retailer_id, observed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// RejectedSince lists rejected observations for manual review.
func (s *Store) RejectedSince(ctx context.Context, since time.Time) ([]model.PriceObservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, retailer_id, price_pence, currency, in_stock, observed_at, raw_url, validation_status, reject_reason, flags
		FROM price_observations
		WHERE validation_status = 'rejected' AND observed_at >= $1
		ORDER BY observed_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("rejected observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

type obsRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanObservations(rows obsRows) ([]model.PriceObservation, error) {
	var out []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		var status, reason string
		var flags []string
		if err := rows.Scan(&o.ID, &o.ProductID, &o.RetailerID, &o.PricePence, &o.Currency,
			&o.InStock, &o.ObservedAt, &o.RawURL, &status, &reason, &flags); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Status = model.ValidationStatus(status)
		o.RejectReason = model.ReasonKind(reason)
		for _, f := range flags {
			o.Flags = append(o.Flags, model.ReasonKind(f))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
