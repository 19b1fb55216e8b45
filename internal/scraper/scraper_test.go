package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetracker/internal/model"
	"pricetracker/internal/procguard"
)

const productPage = `<!DOCTYPE html>
<html><body>
  <div class="banner">Save £200 on orders over £700</div>
  <h1>EcoFlow DELTA 2</h1>
  <span class="product-price">£1,299.00</span>
  <div class="availability">In stock - ships tomorrow</div>
</body></html>`

const outOfStockPage = `<!DOCTYPE html>
<html><body>
  <span class="product-price">£899.00</span>
  <div class="availability">Currently out of stock</div>
</body></html>`

func testTarget(url string) model.RetailerTarget {
	return model.RetailerTarget{
		RetailerID: "currys",
		ProductID:  "delta-2",
		URL:        url,
		Selectors: model.SelectorConfig{
			// The banner selector comes first on purpose: promotional copy
			// must be skipped, not parsed as a price.
			Price:             []string{".banner", ".product-price"},
			Availability:      ".availability",
			OutOfStockMarkers: []string{"out of stock"},
		},
	}
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func fetchKind(t *testing.T, err error) model.FetchErrorKind {
	t.Helper()
	var fe *model.FetchError
	require.ErrorAs(t, err, &fe)
	return fe.Kind
}

func TestHTTPAdapterExtractsPriceSkippingPromoCopy(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productPage))
	})

	a := NewHTTPAdapter(5 * time.Second)
	res, err := a.Fetch(context.Background(), testTarget(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, int64(129900), res.PricePence)
	assert.Equal(t, "GBP", res.Currency)
	assert.True(t, res.InStock)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestHTTPAdapterDetectsOutOfStock(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(outOfStockPage))
	})

	a := NewHTTPAdapter(5 * time.Second)
	res, err := a.Fetch(context.Background(), testTarget(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, int64(89900), res.PricePence)
	assert.False(t, res.InStock)
}

func TestHTTPAdapterSelectorMissIsParseError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>site redesign, nothing matches</p></body></html>`))
	})

	a := NewHTTPAdapter(5 * time.Second)
	_, err := a.Fetch(context.Background(), testTarget(srv.URL))
	assert.Equal(t, model.ParseError, fetchKind(t, err))
}

func TestHTTPAdapterStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   model.FetchErrorKind
	}{
		{http.StatusForbidden, model.BlockedError},
		{http.StatusTooManyRequests, model.BlockedError},
		{http.StatusInternalServerError, model.NetworkError},
		{http.StatusBadGateway, model.NetworkError},
		{http.StatusNotFound, model.ParseError},
	}
	for _, c := range cases {
		srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		})
		a := NewHTTPAdapter(5 * time.Second)
		_, err := a.Fetch(context.Background(), testTarget(srv.URL))
		assert.Equal(t, c.kind, fetchKind(t, err), "status %d", c.status)
	}
}

func TestHTTPAdapterChallengePageIsBlocked(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Please complete the CAPTCHA to continue</body></html>`))
	})

	a := NewHTTPAdapter(5 * time.Second)
	_, err := a.Fetch(context.Background(), testTarget(srv.URL))
	assert.Equal(t, model.BlockedError, fetchKind(t, err))
}

func TestHTTPAdapterConnectionRefusedIsNetworkError(t *testing.T) {
	a := NewHTTPAdapter(2 * time.Second)
	_, err := a.Fetch(context.Background(), testTarget("http://127.0.0.1:1/nope"))
	assert.Equal(t, model.NetworkError, fetchKind(t, err))
}

func TestRegistryRouting(t *testing.T) {
	httpA := NewHTTPAdapter(time.Second)
	headless := NewHeadlessAdapter(procguard.New(nil), "chromium", time.Second)
	reg := NewRegistry(httpA, headless)

	plain := model.RetailerTarget{RetailerID: "currys"}
	js := model.RetailerTarget{RetailerID: "ecoflow_uk", RenderJS: true}

	assert.Equal(t, "http", reg.ForTarget(plain).Name())
	assert.Equal(t, "headless", reg.ForTarget(js).Name())

	custom := NewHTTPAdapter(time.Second)
	reg.Register("ecoflow_uk", custom)
	assert.Same(t, custom, reg.ForTarget(js))
}

// The headless adapter must release its guard handle on every exit path,
// including failures. "echo" stands in for chromium: it exits fine but dumps
// no DOM, so the fetch fails as a parse error while the handle table must
// end empty.
func TestHeadlessAdapterReleasesHandleOnFailure(t *testing.T) {
	guard := procguard.New(nil)
	a := NewHeadlessAdapter(guard, "echo", 5*time.Second)

	_, err := a.Fetch(context.Background(), testTarget("http://example.com/p"))
	assert.Equal(t, model.ParseError, fetchKind(t, err))
	assert.Equal(t, 0, guard.Tracked())
}

func TestHeadlessAdapterMissingBinaryIsNetworkError(t *testing.T) {
	guard := procguard.New(nil)
	a := NewHeadlessAdapter(guard, "no-such-browser-binary", time.Second)

	_, err := a.Fetch(context.Background(), testTarget("http://example.com/p"))
	assert.Equal(t, model.NetworkError, fetchKind(t, err))
	assert.Equal(t, 0, guard.Tracked())

	var fe *model.FetchError
	require.True(t, errors.As(err, &fe))
	assert.NotNil(t, fe.Unwrap())
}

func TestLooksPromotional(t *testing.T) {
	assert.True(t, looksPromotional("Save £200 today"))
	assert.True(t, looksPromotional("50% off orders over £700"))
	assert.True(t, looksPromotional("From £199"))
	assert.False(t, looksPromotional("£1,299.00"))
}
