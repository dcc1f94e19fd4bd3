package currency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateServer(t *testing.T, hits *atomic.Int64, rates map[string]map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		base := r.URL.Query().Get("base")
		table, ok := rates[base]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"base": base, "rates": table})
	}))
}

func newTestConverter(t *testing.T, url string) *Converter {
	t.Helper()
	return NewConverter(Config{BaseURL: url, CacheTTL: time.Hour, FetchTimeout: time.Second}, nil)
}

func TestConvertIdentityNeverFetches(t *testing.T) {
	var hits atomic.Int64
	srv := rateServer(t, &hits, nil)
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	out, err := c.Convert(context.Background(), 4599, "usd", "USD")

	require.NoError(t, err)
	assert.Equal(t, int64(4599), out)
	assert.Equal(t, int64(0), hits.Load())
}

func TestConvertSameExponent(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{
		"USD": {"EUR": 0.9},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	out, err := c.Convert(context.Background(), 1000, "USD", "EUR")

	require.NoError(t, err)
	assert.Equal(t, int64(900), out)
}

func TestConvertAcrossExponents(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{
		"USD": {"JPY": 150.0, "KWD": 0.3},
		"JPY": {"USD": 1.0 / 150.0},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)

	// 10.00 USD at 150 JPY/USD -> 1500 JPY (exponent 0)
	out, err := c.Convert(context.Background(), 1000, "USD", "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), out)

	// 10.00 USD at 0.3 KWD/USD -> 3.000 KWD (exponent 3)
	out, err = c.Convert(context.Background(), 1000, "USD", "KWD")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), out)

	// back again: 1500 JPY -> 10.00 USD
	out, err = c.Convert(context.Background(), 1500, "JPY", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), out)
}

func TestConvertRoundsHalfUp(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{
		"USD": {"EUR": 0.333},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	out, err := c.Convert(context.Background(), 101, "USD", "EUR")

	require.NoError(t, err)
	// 1.01 * 0.333 = 0.33633 -> 34 cents
	assert.Equal(t, int64(34), out)
}

func TestConvertStrictFailure(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	_, err := c.Convert(context.Background(), 1000, "USD", "EUR")

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "USD", convErr.From)
	assert.Equal(t, "EUR", convErr.To)
}

func TestConvertUnknownQuoteCurrency(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{
		"USD": {"EUR": 0.9},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	_, err := c.Convert(context.Background(), 1000, "USD", "XXX")

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
}

func TestConvertOrFallbackDegradesToIdentityRate(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)

	// 1500 JPY at rate 1 -> 1500.00 USD: exponents still apply on fallback
	out := c.ConvertOrFallback(context.Background(), 1500, "JPY", "USD")
	assert.Equal(t, int64(150000), out)

	out = c.ConvertOrFallback(context.Background(), 1000, "USD", "EUR")
	assert.Equal(t, int64(1000), out)
}

func TestRateCacheHonorsTTL(t *testing.T) {
	var hits atomic.Int64
	srv := rateServer(t, &hits, map[string]map[string]float64{
		"USD": {"EUR": 0.9},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.Convert(context.Background(), 1000, "USD", "EUR")
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), 2000, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load(), "second call within TTL must hit the cache")

	clock = clock.Add(2 * time.Hour)
	_, err = c.Convert(context.Background(), 1000, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load(), "expired entry must refetch")
}

func TestFetchInjectsBaseRate(t *testing.T) {
	srv := rateServer(t, nil, map[string]map[string]float64{
		"USD": {"EUR": 0.9},
	})
	defer srv.Close()

	c := newTestConverter(t, srv.URL)
	table, err := c.fetch(context.Background(), "USD")

	require.NoError(t, err)
	assert.True(t, table.rates["USD"].Equal(decimal.NewFromInt(1)))
}
