// Package validator decides whether a scraped price becomes an accepted
// observation. It exists to stop promotional-banner noise and gross scraping
// errors from poisoning the price history, while never silently discarding
// anything: rejections are persisted with their reason.
package validator

import (
	"sort"

	"pricetracker/internal/config"
	"pricetracker/internal/model"
)

type Validator struct {
	varianceRejectPct float64
	promoMinProducts  int
	promoDeviationPct float64
	spreadMult        float64
	knownPromoAmounts map[int64]bool
}

func New(cfg *config.Config) *Validator {
	known := make(map[int64]bool, len(cfg.KnownPromoAmounts))
	for _, p := range cfg.KnownPromoAmounts {
		known[p] = true
	}
	return &Validator{
		varianceRejectPct: cfg.VarianceRejectPct,
		promoMinProducts:  cfg.PromoMinProducts,
		promoDeviationPct: cfg.PromoDeviationPct,
		spreadMult:        cfg.CrossRetailerSpreadMult,
		knownPromoAmounts: known,
	}
}

// Validate applies the rules in order; the first failing rule rejects with
// that reason. Later rules only add non-blocking flags.
func (v *Validator) Validate(vctx *Context, product model.Product, target model.RetailerTarget, f model.FetchResult) model.ValidationResult {
	price := f.PricePence

	// 1. Hard range check per category. Catches things like extracting
	// "£0.99" shipping text as the product price.
	if bounds, ok := vctx.Bounds[product.Category]; ok {
		if price < bounds.MinPence {
			return reject(model.BelowCategoryRange)
		}
		if bounds.MaxPence > 0 && price > bounds.MaxPence {
			return reject(model.AboveCategoryRange)
		}
	}

	hist, hasHist := vctx.history(target)

	// 2. Promotional-content filter. An exact value recurring for many
	// distinct products at one retailer is almost certainly a banner
	// ("£700 off orders over ..."), not a price.
	if vctx.promoProductCount(target.RetailerID, price) >= v.promoMinProducts {
		if hasHist && hist.Count > 0 {
			if pctDeviation(price, hist.MedianPence) > v.promoDeviationPct {
				return reject(model.SuspectedPromotionalContent)
			}
		} else if v.knownPromoAmounts[price] {
			return reject(model.SuspectedPromotionalContent)
		}
	}

	var flags []model.ReasonKind

	// 3. Variance check against the target's own trailing median. Drops
	// beyond the threshold are rejected; rises are never rejected, only
	// flagged, since genuine price increases must not be dropped.
	if hasHist && hist.Count >= 3 && hist.MedianPence > 0 {
		dev := pctDeviation(price, hist.MedianPence)
		if dev > v.varianceRejectPct {
			if price < hist.MedianPence {
				return reject(model.AnomalousDrop)
			}
			flags = append(flags, model.LargeRise)
		}
	}

	// 4. Cross-retailer sanity. Outliers are sometimes genuine (clearance,
	// regional pricing), so this only ever flags.
	others := vctx.otherRetailerPrices(product.ID, target.RetailerID)
	if len(others) >= 2 && isCrossRetailerOutlier(price, others, v.spreadMult) {
		flags = append(flags, model.CrossRetailerOutlier)
	}

	// 5. Soft typical range: unusual but in range, worth a review flag.
	if bounds, ok := vctx.Bounds[product.Category]; ok {
		if (bounds.TypicalMin > 0 && price < bounds.TypicalMin) ||
			(bounds.TypicalMax > 0 && price > bounds.TypicalMax) {
			flags = append(flags, model.OutsideTypicalRange)
		}
	}

	return model.ValidationResult{Accepted: true, Flags: flags}
}

func reject(reason model.ReasonKind) model.ValidationResult {
	return model.ValidationResult{Accepted: false, Reason: reason}
}

func pctDeviation(price, median int64) float64 {
	if median == 0 {
		return 0
	}
	diff := price - median
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(median) * 100
}

func isCrossRetailerOutlier(price int64, others []int64, spreadMult float64) bool {
	med := MedianPence(others)
	min, max := others[0], others[0]
	for _, p := range others[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	spread := max - min
	if spread == 0 {
		// Identical prices everywhere else: call anything beyond 5% of the
		// consensus an outlier.
		spread = med / 20
		if spread == 0 {
			spread = 1
		}
	}
	diff := price - med
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) > spreadMult*float64(spread)
}

// MedianPence returns the median of a non-empty price slice. For even
// lengths the lower middle is used; prices are discrete pence so
// interpolation buys nothing.
func MedianPence(prices []int64) int64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := make([]int64, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)/2]
}
