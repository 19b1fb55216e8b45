package validator

import (
	"pricetracker/internal/model"
)

// TargetHistory summarizes the accepted observations of one
// (product, retailer) pair over the trailing history window.
type TargetHistory struct {
	MedianPence int64
	Count       int
}

// Context is the snapshot of historical state a cycle validates against.
// It is built once at cycle start from the store and never consults any
// ambient state, so re-validating the same FetchResult against the same
// Context always yields the same result.
type Context struct {
	Bounds map[string]model.CategoryBounds

	// History keyed by RetailerTarget.Key().
	History map[string]TargetHistory

	// RetailerPriceProducts counts, per retailer and exact pence value, the
	// distinct products observed at that value inside the promo window.
	// A value recurring across many unrelated products is banner noise.
	RetailerPriceProducts map[string]map[int64]int

	// CurrentPrices holds the latest accepted price per retailer for each
	// product inside the cross-retailer window.
	CurrentPrices map[string]map[string]int64
}

func NewContext() *Context {
	return &Context{
		Bounds:                make(map[string]model.CategoryBounds),
		History:               make(map[string]TargetHistory),
		RetailerPriceProducts: make(map[string]map[int64]int),
		CurrentPrices:         make(map[string]map[string]int64),
	}
}

func (c *Context) history(t model.RetailerTarget) (TargetHistory, bool) {
	h, ok := c.History[t.Key()]
	return h, ok
}

func (c *Context) promoProductCount(retailerID string, pence int64) int {
	byPrice, ok := c.RetailerPriceProducts[retailerID]
	if !ok {
		return 0
	}
	return byPrice[pence]
}

// otherRetailerPrices returns current prices for the product at retailers
// other than the one being validated.
func (c *Context) otherRetailerPrices(productID, retailerID string) []int64 {
	var out []int64
	for r, p := range c.CurrentPrices[productID] {
		if r != retailerID {
			out = append(out, p)
		}
	}
	return out
}
