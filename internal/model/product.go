package model

// Product is catalog data, owned by catalog management and read-only here.
type Product struct {
	ID       string
	Brand    string
	Model    string
	Category string
	Specs    map[string]string
}

// CategoryBounds holds the configured price range for a product category.
// Min/Max are hard limits; TypicalMin/TypicalMax only produce a review flag.
type CategoryBounds struct {
	Category   string
	MinPence   int64
	MaxPence   int64
	TypicalMin int64
	TypicalMax int64
}

// SelectorConfig names the extraction points on a retailer's product page.
// Price selectors are tried in order until one yields a parseable price.
type SelectorConfig struct {
	Price             []string `json:"price"`
	Availability      string   `json:"availability"`
	OutOfStockMarkers []string `json:"out_of_stock_markers"`
}

// RetailerTarget is one (product, retailer) pairing to be scraped.
type RetailerTarget struct {
	RetailerID string
	ProductID  string
	URL        string
	Selectors  SelectorConfig
	RenderJS   bool
}

// Key identifies the target uniquely within a cycle.
func (t RetailerTarget) Key() string {
	return t.ProductID + "@" + t.RetailerID
}
