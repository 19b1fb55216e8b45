package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricetracker/internal/config"
	"pricetracker/internal/db"
	"pricetracker/internal/observability"
	"pricetracker/internal/orchestrator"
	"pricetracker/internal/pricecache"
	"pricetracker/internal/procguard"
	"pricetracker/internal/scraper"
	"pricetracker/internal/store"
	"pricetracker/internal/validator"
)

// go run cmd/scraper/main.go -once        one cycle, then exit
// go run cmd/scraper/main.go              cycle on SCRAPE_INTERVAL_S forever
func main() {
	once := flag.Bool("once", false, "run a single scrape cycle and exit")
	flag.Parse()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	st := store.New(pool)

	var publisher orchestrator.Publisher
	if cfg.RedisURL != "" {
		cache, err := pricecache.New(ctx, cfg.RedisURL, 48*time.Hour)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer cache.Close()
		publisher = cache
	} else {
		log.Println("REDIS_URL not set, latest-price publishing disabled")
	}

	observability.Start(cfg.MetricsPort)

	guard := procguard.New([]string{"chromium", "chrome"})
	registry := scraper.NewRegistry(
		scraper.NewHTTPAdapter(30*time.Second),
		scraper.NewHeadlessAdapter(guard, cfg.ChromiumPath, 60*time.Second),
	)

	orch := orchestrator.New(cfg, st, registry, validator.New(cfg), guard, publisher)

	if *once {
		if _, err := orch.Cycle(ctx); err != nil {
			log.Fatalf("cycle: %v", err)
		}
		return
	}
	orch.Run(ctx)
	log.Println("scraper stopped")
}
