// Package yahoo provides a Yahoo Finance quote client.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoQuote is returned when Yahoo has no usable quote for a symbol
var ErrNoQuote = errors.New("yahoo: no quote")

const chartURL = "https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1m&range=1d"

// Client is a Yahoo Finance v8 chart API client
type Client struct {
	client  *http.Client
	baseURL string // Overridable for tests
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 8 * time.Second,
		},
		baseURL: chartURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse mirrors the subset of the v8 chart payload we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// Quote fetches the latest price for a symbol
func (c *Client) Quote(ctx context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, ErrNoQuote
	}

	url := fmt.Sprintf(c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("yahoo returned HTTP %d for %s", resp.StatusCode, symbol)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, fmt.Errorf("failed to decode quote response: %w", err)
	}

	if len(raw.Chart.Result) == 0 {
		return 0, ErrNoQuote
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice

	// Fall back to the last non-zero close when the meta price is missing
	if price <= 0 && len(r.Timestamp) > 0 && len(r.Indicators.Quote) > 0 &&
		len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if c := r.Indicators.Quote[0].Close[i]; c > 0 {
				price = c
				break
			}
		}
	}

	if price <= 0 {
		return 0, ErrNoQuote
	}

	c.log.Debug().Str("symbol", symbol).Float64("price", price).Msg("Quote fetched")

	return price, nil
}
