// Package pricecache publishes the latest-price projection to redis after
// each cycle. The static-site generator and alerting consume it from there
// instead of querying Postgres.
package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pricetracker/internal/model"
)

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

type latestEntry struct {
	PricePence int64     `json:"price_pence"`
	Currency   string    `json:"currency"`
	InStock    bool      `json:"in_stock"`
	ObservedAt time.Time `json:"observed_at"`
	URL        string    `json:"url"`
}

func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// PublishLatest writes one hash per product, field per retailer, holding the
// newest accepted observation.
func (c *Cache) PublishLatest(ctx context.Context, latest []model.PriceObservation) error {
	pipe := c.rdb.Pipeline()
	touched := make(map[string]bool)
	for _, o := range latest {
		entry, err := json.Marshal(latestEntry{
			PricePence: o.PricePence,
			Currency:   o.Currency,
			InStock:    o.InStock,
			ObservedAt: o.ObservedAt,
			URL:        o.RawURL,
		})
		if err != nil {
			return fmt.Errorf("marshal latest price: %w", err)
		}
		key := "latest_price:" + o.ProductID
		pipe.HSet(ctx, key, o.RetailerID, entry)
		touched[key] = true
	}
	for key := range touched {
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish latest prices: %w", err)
	}
	return nil
}

func (c *Cache) Close() error { return c.rdb.Close() }
