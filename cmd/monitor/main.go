package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"pricetracker/internal/config"
	"pricetracker/internal/db"
	"pricetracker/internal/model"
	"pricetracker/internal/store"
)

// go run cmd/monitor/main.go -hours 24           per-retailer health
// go run cmd/monitor/main.go -stale -hours 48    targets with stale prices
// go run cmd/monitor/main.go -rejected -hours 24 rejected observations
func main() {
	hours := flag.Int("hours", 24, "look-back window in hours")
	stale := flag.Bool("stale", false, "list targets with no recent accepted price")
	rejected := flag.Bool("rejected", false, "list recently rejected observations")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	st := store.New(pool)

	since := time.Now().UTC().Add(-time.Duration(*hours) * time.Hour)

	switch {
	case *stale:
		showStale(ctx, st, since)
	case *rejected:
		showRejected(ctx, st, since)
	default:
		showHealth(ctx, st, since, *hours)
	}
}

func showHealth(ctx context.Context, st *store.Store, since time.Time, hours int) {
	rows, err := st.RetailerHealthSince(ctx, since)
	if err != nil {
		log.Fatalf("retailer health: %v", err)
	}
	if len(rows) == 0 {
		fmt.Printf("no scraping activity in the last %dh\n", hours)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Scraping activity, last %dh", hours))
	t.AppendHeader(table.Row{"Retailer", "Total", "Success", "Errors", "Rate", "Last attempt"})
	for _, h := range rows {
		t.AppendRow(table.Row{
			h.RetailerID, h.Total, h.Successful, h.Errors,
			fmt.Sprintf("%.1f%%", h.SuccessRate()),
			h.LastAttempt.Format(time.RFC3339),
		})
	}
	t.Render()
}

func showStale(ctx context.Context, st *store.Store, cutoff time.Time) {
	targets, err := st.StaleTargets(ctx, cutoff)
	if err != nil {
		log.Fatalf("stale targets: %v", err)
	}
	if len(targets) == 0 {
		fmt.Println("no stale targets")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Stale targets")
	t.AppendHeader(table.Row{"Product", "Retailer", "Last accepted price"})
	for _, s := range targets {
		last := "never"
		if !s.LastSeen.IsZero() && s.LastSeen.Unix() > 0 {
			last = s.LastSeen.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{s.ProductID, s.RetailerID, last})
	}
	t.Render()
}

func showRejected(ctx context.Context, st *store.Store, since time.Time) {
	obs, err := st.RejectedSince(ctx, since)
	if err != nil {
		log.Fatalf("rejected observations: %v", err)
	}
	if len(obs) == 0 {
		fmt.Println("no rejected observations")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Rejected observations")
	t.AppendHeader(table.Row{"Product", "Retailer", "Price", "Reason", "Observed"})
	for _, o := range obs {
		t.AppendRow(table.Row{
			o.ProductID, o.RetailerID,
			model.FormatPence(o.PricePence) + " " + o.Currency,
			string(o.RejectReason),
			o.ObservedAt.Format(time.RFC3339),
		})
	}
	t.Render()
}
