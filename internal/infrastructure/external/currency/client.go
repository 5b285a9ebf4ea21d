// Package currency converts amounts through an exchange-rate HTTP API.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "currency"

// Config holds exchange-rate client settings
type Config struct {
	// BaseURL is joined with the source currency, e.g. https://api.exchangerate-api.com/v4/latest/
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client implements port.CurrencyConverter.
// Rate tables are cached per source currency and outbound lookups are rate limited.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *ristretto.Cache
	ttl        time.Duration
	logger     *zap.Logger
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// NewClient creates a new exchange-rate client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("currency base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     200,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate cache: %w", err)
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:      cache,
		ttl:        cfg.CacheTTL,
		logger:     logger,
	}, nil
}

// Convert converts amount from one currency to another, rounded to cents.
// On failure it returns the unconverted amount together with an external service error.
func (c *Client) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to || to == "" {
		return amount, nil
	}

	rates, err := c.rates(ctx, from)
	if err != nil {
		return amount, apperr.External(serviceName, err)
	}

	r, ok := rates[to]
	if !ok {
		return amount, apperr.External(serviceName, fmt.Errorf("no rate from %s to %s", from, to))
	}
	return amount.Mul(r).Round(2), nil
}

func (c *Client) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if cached, ok := c.cache.Get(base); ok {
		return cached.(map[string]decimal.Decimal), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+base, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Exchange rate request failed", zap.String("base", base), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, base)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("empty rate table for %s", base)
	}

	c.cache.SetWithTTL(base, body.Rates, 1, c.ttl)
	c.cache.Wait()

	c.logger.Debug("Exchange rates refreshed", zap.String("base", base), zap.Int("rates", len(body.Rates)))
	return body.Rates, nil
}

// Close releases the rate cache
func (c *Client) Close() {
	c.cache.Close()
}

var _ port.CurrencyConverter = (*Client)(nil)
