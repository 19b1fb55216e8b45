package store

import (
	"context"
	"fmt"
	"time"

	"pricetracker/internal/model"
)

func (s *Store) InsertAttempt(ctx context.Context, a model.ScrapeAttempt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO scrape_attempts
		(id, retailer_id, product_id, status, error_detail, response_time_ms, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.RetailerID, a.ProductID, string(a.Status), a.ErrorDetail, a.ResponseTimeMs, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("insert attempt %s/%s: %w", a.ProductID, a.RetailerID, err)
	}
	return nil
}

// RecentOutcomes returns success/failure booleans for a retailer's last n
// attempts, newest first. Seeds the circuit breaker at cycle start so a
// retailer that failed all of last cycle does not get a fresh window.
func (s *Store) RecentOutcomes(ctx context.Context, retailerID string, n int) ([]bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status FROM scrape_attempts
		WHERE retailer_id = $1 AND status IN ('success', 'rejected', 'error', 'not_found')
		ORDER BY attempted_at DESC
		LIMIT $2
	`, retailerID, n)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes for %s: %w", retailerID, err)
	}
	defer rows.Close()

	var out []bool
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		// A rejected price still means the fetch itself worked.
		out = append(out, status == "success" || status == "rejected")
	}
	return out, rows.Err()
}

// RetailerHealth is one row of the monitoring report.
type RetailerHealth struct {
	RetailerID  string
	Total       int64
	Successful  int64
	Errors      int64
	LastAttempt time.Time
}

func (h RetailerHealth) SuccessRate() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Successful) / float64(h.Total) * 100
}

func (s *Store) RetailerHealthSince(ctx context.Context, since time.Time) ([]RetailerHealth, error) {
	rows, err := s.db.Query(ctx, `
		SELECT retailer_id,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status IN ('success', 'rejected')) AS successful,
		       COUNT(*) FILTER (WHERE status = 'error') AS errors,
		       MAX(attempted_at) AS last_attempt
		FROM scrape_attempts
		WHERE attempted_at >= $1
		GROUP BY retailer_id
		ORDER BY last_attempt DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("retailer health: %w", err)
	}
	defer rows.Close()

	var out []RetailerHealth
	for rows.Next() {
		var h RetailerHealth
		if err := rows.Scan(&h.RetailerID, &h.Total, &h.Successful, &h.Errors, &h.LastAttempt); err != nil {
			return nil, fmt.Errorf("scan health: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// StaleTarget is a (product, retailer) pair whose price has gone stale.
type StaleTarget struct {
	ProductID  string
	RetailerID string
	LastSeen   time.Time
}

// StaleTargets lists catalog targets with no accepted observation newer than
// the cutoff. Stale prices degrade gracefully; this makes them visible.
func (s *Store) StaleTargets(ctx context.Context, cutoff time.Time) ([]StaleTarget, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.product_id, t.retailer_id, COALESCE(MAX(o.observed_at), 'epoch'::timestamptz)
		FROM retailer_targets t
		LEFT JOIN price_observations o
		  ON o.product_id = t.product_id
		 AND o.retailer_id = t.retailer_id
		 AND o.validation_status = 'accepted'
		GROUP BY t.product_id, t.retailer_id
		HAVING COALESCE(MAX(o.observed_at), 'epoch'::timestamptz) < $1
		ORDER BY 3 ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale targets: %w", err)
	}
	defer rows.Close()

	var out []StaleTarget
	for rows.Next() {
		var t StaleTarget
		if err := rows.Scan(&t.ProductID, &t.RetailerID, &t.LastSeen); err != nil {
			return nil, fmt.Errorf("scan stale target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
