package scraper

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pricetracker/internal/model"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// HTTPAdapter scrapes retailers whose product pages render server-side.
type HTTPAdapter struct {
	client *http.Client
}

func NewHTTPAdapter(timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAdapter) Name() string { return "http" }

func (a *HTTPAdapter) Fetch(ctx context.Context, target model.RetailerTarget) (model.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.NetworkError, err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.5")

	resp, err := a.client.Do(req)
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.NetworkError, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return model.FetchResult{}, model.NewFetchError(model.BlockedError,
			fmt.Errorf("%s status %d", target.RetailerID, resp.StatusCode))
	case resp.StatusCode >= 500:
		return model.FetchResult{}, model.NewFetchError(model.NetworkError,
			fmt.Errorf("%s status %d", target.RetailerID, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		// 404 and friends: the URL or site structure changed.
		return model.FetchResult{}, model.NewFetchError(model.ParseError,
			fmt.Errorf("%s status %d", target.RetailerID, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.NetworkError, err)
	}

	return parseProductPage(string(body), target)
}

// parseProductPage is shared by the HTTP and headless adapters: both end up
// with an HTML document that the target's selectors are applied to.
func parseProductPage(body string, target model.RetailerTarget) (model.FetchResult, error) {
	if looksBlocked(body) {
		return model.FetchResult{}, model.NewFetchError(model.BlockedError,
			fmt.Errorf("%s served an anti-bot challenge", target.RetailerID))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.ParseError, err)
	}

	pence, currency, inStock, err := extractFromDocument(doc, target.Selectors)
	if err != nil {
		return model.FetchResult{}, model.NewFetchError(model.ParseError, err)
	}

	return model.FetchResult{
		PricePence: pence,
		Currency:   currency,
		InStock:    inStock,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
