package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"pricetracker/internal/config"
	"pricetracker/internal/db"
	"pricetracker/internal/model"
	"pricetracker/internal/store"
	"pricetracker/internal/validator"
)

// go run cmd/validate/main.go <product_id> <retailer_id> <price>
// go run cmd/validate/main.go -report
//
// Dry-runs the validation rules for a price against the stored history, so
// a suspicious reading can be checked by hand before the rule set is tuned.
// -report prints the active rule configuration and the staleness report
// instead.
func main() {
	report := flag.Bool("report", false, "print the rule configuration and staleness report")
	staleHours := flag.Int("stale-hours", 48, "staleness cutoff for -report, in hours")
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

	if *report {
		writeRuleReport(os.Stdout, cfg)
		cutoff := time.Now().UTC().Add(-time.Duration(*staleHours) * time.Hour)
		stale, err := st.StaleTargets(ctx, cutoff)
		if err != nil {
			log.Fatalf("stale targets: %v", err)
		}
		writeStaleReport(os.Stdout, stale, *staleHours)
		return
	}

	args := flag.Args()
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: validate <product_id> <retailer_id> <price> | validate -report")
		fmt.Fprintln(os.Stderr, "example: validate ecoflow-delta-2 ecoflow_uk 700.00")
		os.Exit(2)
	}
	productID, retailerID, priceArg := args[0], args[1], args[2]

	pence, currency, err := model.ParsePrice(priceArg)
	if err != nil {
		log.Fatalf("parse price %q: %v", priceArg, err)
	}

	cat, err := st.LoadCatalog(ctx)
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	product, ok := cat.Products[productID]
	if !ok {
		log.Fatalf("unknown product %q", productID)
	}

	vctx, err := st.BuildValidationContext(ctx, cat, cfg.PromoWindow, cfg.PromoWindow)
	if err != nil {
		log.Fatalf("build validation context: %v", err)
	}

	target := model.RetailerTarget{RetailerID: retailerID, ProductID: productID}
	result := validator.New(cfg).Validate(vctx, product, target, model.FetchResult{
		PricePence: pence,
		Currency:   currency,
		InStock:    true,
		FetchedAt:  time.Now().UTC(),
	})

	if result.Accepted {
		fmt.Printf("ACCEPTED: %s @ %s, price %s %s\n", productID, retailerID, model.FormatPence(pence), currency)
	} else {
		fmt.Printf("REJECTED: %s @ %s, price %s %s, reason %s\n", productID, retailerID, model.FormatPence(pence), currency, result.Reason)
	}
	for _, f := range result.Flags {
		fmt.Printf("flag: %s\n", f)
	}
}

func writeRuleReport(w io.Writer, cfg *config.Config) {
	promo := make([]string, len(cfg.KnownPromoAmounts))
	for i, p := range cfg.KnownPromoAmounts {
		promo[i] = model.FormatPence(p)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Validation rule configuration")
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"Variance reject threshold", fmt.Sprintf("%.0f%% drop vs trailing median", cfg.VarianceRejectPct)},
		{"Promo filter min products", cfg.PromoMinProducts},
		{"Promo deviation threshold", fmt.Sprintf("%.0f%%", cfg.PromoDeviationPct)},
		{"Promo window", cfg.PromoWindow.String()},
		{"Known promo amounts", strings.Join(promo, ", ")},
		{"Cross-retailer spread multiplier", cfg.CrossRetailerSpreadMult},
		{"Circuit breaker threshold", cfg.CircuitBreakerThreshold},
		{"Circuit breaker window", fmt.Sprintf("%d attempts", cfg.CircuitBreakerWindow)},
		{"Retry max attempts", cfg.RetryMaxAttempts},
		{"Retry backoff", fmt.Sprintf("%s base, %s cap", cfg.RetryBackoffBase, cfg.RetryBackoffCap)},
		{"Retailer min delay", cfg.RetailerMinDelay.String()},
		{"Cycle timeout", cfg.CycleTimeout.String()},
	})
	t.Render()
}

func writeStaleReport(w io.Writer, targets []store.StaleTarget, hours int) {
	if len(targets) == 0 {
		fmt.Fprintf(w, "no targets without an accepted price in the last %dh\n", hours)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Targets without an accepted price in the last %dh", hours))
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
