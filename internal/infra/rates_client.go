package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"currency_go/internal/domain"
)

// maxRatesBody caps the rates payload; a full table is a few kilobytes
const maxRatesBody = 1 << 20

// RatesClient fetches the EUR-anchored rate table from the backend
type RatesClient struct {
	apiURL     string
	httpClient *http.Client
	metrics    *Metrics
	logger     *slog.Logger
}

// NewRatesClient creates a new rates client
func NewRatesClient(apiURL string, timeout time.Duration, metrics *Metrics) *RatesClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RatesClient{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  slog.Default().With("module", "rates_client"),
	}
}

// FetchRates performs a single GET against the rates endpoint.
// There is no retry; a failure ends the current refresh cycle.
func (c *RatesClient) FetchRates(ctx context.Context) (*domain.RateSnapshot, error) {
	if c.metrics != nil {
		c.metrics.RateFetches.Inc()
	}

	snap, err := c.doFetch(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RateFetchErrors.Inc()
		}
		return nil, err
	}

	c.logger.Info("Rate table fetched",
		slog.Int("currencies", len(snap.Rates)),
		slog.Time("fetched_at", snap.FetchedAt),
	)
	return snap, nil
}

func (c *RatesClient) doFetch(ctx context.Context) (*domain.RateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, domain.NewNetworkError("fetch_rates", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("fetch_rates", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewNetworkError("fetch_rates", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRatesBody))
	if err != nil {
		return nil, domain.NewNetworkError("read_rates", err)
	}

	var snap domain.RateSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, domain.NewNetworkError("decode_rates", err)
	}

	// The anchor is always present, so anything less means an empty table
	if len(snap.Rates) < 2 {
		return nil, domain.NewNetworkError("decode_rates", errors.New("empty rate table"))
	}

	return &snap, nil
}
