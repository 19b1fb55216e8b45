package store

import (
	"context"
	"fmt"

	"pricetracker/internal/model"
)

// Catalog is the read-only snapshot loaded at cycle start. Products and
// targets are owned by catalog management; this code never writes them.
type Catalog struct {
	Products map[string]model.Product
	Bounds   map[string]model.CategoryBounds
	Targets  []model.RetailerTarget
}

func (s *Store) LoadCatalog(ctx context.Context) (*Catalog, error) {
	cat := &Catalog{
		Products: make(map[string]model.Product),
		Bounds:   make(map[string]model.CategoryBounds),
	}

	rows, err := s.db.Query(ctx, `
		SELECT category, min_price_pence, max_price_pence, typical_min_pence, typical_max_pence
		FROM product_categories
	`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b model.CategoryBounds
		if err := rows.Scan(&b.Category, &b.MinPence, &b.MaxPence, &b.TypicalMin, &b.TypicalMax); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cat.Bounds[b.Category] = b
	}
	rows.Close()

	rows, err = s.db.Query(ctx, `SELECT id, brand, model, category, specs FROM products`)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Brand, &p.Model, &p.Category, &p.Specs); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		cat.Products[p.ID] = p
	}
	rows.Close()

	rows, err = s.db.Query(ctx, `
		SELECT retailer_id, product_id, url, selectors, render_js
		FROM retailer_targets
	`)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.RetailerTarget
		if err := rows.Scan(&t.RetailerID, &t.ProductID, &t.URL, &t.Selectors, &t.RenderJS); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		cat.Targets = append(cat.Targets, t)
	}
	return cat, rows.Err()
}
