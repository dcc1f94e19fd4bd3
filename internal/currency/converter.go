package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
)

// ConversionError is the typed failure for strict conversions: the two
// currencies involved plus the underlying cause (rate fetch failure, unknown
// quote currency, ...).
type ConversionError struct {
	From  string
	To    string
	Cause error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("convert %s->%s: %v", e.From, e.To, e.Cause)
	}
	return fmt.Sprintf("convert %s->%s failed", e.From, e.To)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// Config tunes the converter. Zero values fall back to the defaults below.
type Config struct {
	BaseURL      string        // rate provider root, e.g. https://api.frankfurter.dev/v1
	CacheTTL     time.Duration // default 6h
	FetchTimeout time.Duration // default 5s; bounds how long a capture can stall on rates
}

const (
	defaultCacheTTL     = 6 * time.Hour
	defaultFetchTimeout = 5 * time.Second
	fetchAttempts       = 2
)

type rateTable struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

// Converter converts minor-unit amounts between currencies. The rate cache
// is process-wide and keyed by base currency; concurrent callers may refill
// the same entry after expiry and the last write wins, which is fine because
// a few seconds of staleness is harmless.
type Converter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]rateTable
}

func NewConverter(cfg Config, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Converter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]rateTable),
	}
}

// Convert converts amount (minor units of from) to minor units of to.
// Same-currency calls are identity and never touch the rate provider.
// Strict mode: any rate problem surfaces as a *ConversionError.
func (c *Converter) Convert(ctx context.Context, amount int64, from, to string) (int64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount, nil
	}

	rate, err := c.rate(ctx, from, to)
	if err != nil {
		return 0, &ConversionError{From: from, To: to, Cause: err}
	}
	return scale(amount, from, to, rate), nil
}

// ConvertOrFallback is the best-effort mode: when a rate is unavailable it
// degrades to a 1:1 rate with a logged warning instead of failing the caller.
// Only display paths should use this; anything that persists a base amount
// must use Convert.
func (c *Converter) ConvertOrFallback(ctx context.Context, amount int64, from, to string) int64 {
	out, err := c.Convert(ctx, amount, from, to)
	if err != nil {
		c.logger.Warn("currency.convert.fallback_identity",
			"from", from, "to", to, "amount", amount, "error", err)
		return scale(amount, from, to, decimal.NewFromInt(1))
	}
	return out
}

// scale does the exponent-aware arithmetic: minor units of from -> major
// units -> rate multiply -> rounded minor units of to.
func scale(amount int64, from, to string, rate decimal.Decimal) int64 {
	major := decimal.New(amount, -Exponent(from))
	converted := major.Mul(rate)
	return converted.Shift(Exponent(to)).Round(0).IntPart()
}

func (c *Converter) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	table, err := c.table(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	r, ok := table.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s in %s table", to, from)
	}
	return r, nil
}

// table returns the cached rate table for base, refreshing it when the TTL
// has lapsed. The fetch runs outside the lock so a slow provider does not
// serialize every conversion; redundant refills are tolerated.
func (c *Converter) table(ctx context.Context, base string) (rateTable, error) {
	c.mu.Lock()
	cached, ok := c.cache[base]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetchedAt) < c.cfg.CacheTTL {
		return cached, nil
	}

	fresh, err := c.fetch(ctx, base)
	if err != nil {
		return rateTable{}, err
	}

	c.mu.Lock()
	c.cache[base] = fresh
	c.mu.Unlock()
	return fresh, nil
}

func (c *Converter) fetch(ctx context.Context, base string) (rateTable, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/latest?base=" + base
	start := c.now()

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}

	err := retry.Do(
		func() error {
			fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(fctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := resp.Body.Close(); cerr != nil {
					c.logger.Warn("currency.fetch.body_close_error", "error", cerr)
				}
			}()
			if resp.StatusCode/100 != 2 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("rate provider status %d: %s", resp.StatusCode, body)
			}
			return json.NewDecoder(resp.Body).Decode(&payload)
		},
		retry.Attempts(fetchAttempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.logger.Error("currency.fetch.failed",
			"base", base, "error", err, "elapsed_ms", c.now().Sub(start).Milliseconds())
		return rateTable{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	if len(payload.Rates) == 0 {
		return rateTable{}, fmt.Errorf("rate provider returned empty table for %s", base)
	}

	rates := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for code, v := range payload.Rates {
		rates[strings.ToUpper(code)] = decimal.NewFromFloat(v)
	}
	rates[base] = decimal.NewFromInt(1)

	c.logger.Info("currency.fetch.ok",
		"base", base, "rates", len(rates), "elapsed_ms", c.now().Sub(start).Milliseconds())
	return rateTable{rates: rates, fetchedAt: c.now()}, nil
}
