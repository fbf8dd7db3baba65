// Package alphavantage provides an Alpha Vantage quote client with a daily
// request budget matching the free-tier limit.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	baseURL         = "https://www.alphavantage.co/query"
	dailyRequestCap = 25
	requestTimeout  = 10 * time.Second
)

// ErrNoQuote is returned when Alpha Vantage has no quote for a symbol
var ErrNoQuote = errors.New("alphavantage: no quote")

// ErrRateLimitExceeded is returned when the daily request budget is spent
type ErrRateLimitExceeded struct {
	ResetAt time.Time
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alphavantage: daily request limit reached, resets at %s",
		e.ResetAt.Format(time.RFC3339))
}

// Client is an Alpha Vantage GLOBAL_QUOTE client
type Client struct {
	apiKey  string
	client  *http.Client
	baseURL string // Overridable for tests
	log     zerolog.Logger

	mu           sync.Mutex
	requestsUsed int
	windowStart  time.Time
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:     baseURL,
		log:         log.With().Str("client", "alphavantage").Logger(),
		windowStart: time.Now(),
	}
}

// GetRemainingRequests returns the number of requests left in today's budget
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetWindow()
	return dailyRequestCap - c.requestsUsed
}

// ResetDailyCounter resets the request budget
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsUsed = 0
	c.windowStart = time.Now()
}

func (c *Client) maybeResetWindow() {
	if time.Since(c.windowStart) >= 24*time.Hour {
		c.requestsUsed = 0
		c.windowStart = time.Now()
	}
}

// checkRateLimit consumes one request from the budget
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeResetWindow()
	if c.requestsUsed >= dailyRequestCap {
		return ErrRateLimitExceeded{ResetAt: c.windowStart.Add(24 * time.Hour)}
	}
	c.requestsUsed++
	return nil
}

// globalQuoteResponse mirrors the GLOBAL_QUOTE payload
type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note string `json:"Note"`
}

// Quote fetches the latest price for a symbol
func (c *Client) Quote(ctx context.Context, symbol string) (float64, error) {
	if c.apiKey == "" {
		return 0, errors.New("alphavantage: API key not configured")
	}
	if symbol == "" {
		return 0, ErrNoQuote
	}

	if err := c.checkRateLimit(); err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s&apikey=%s", c.baseURL, symbol, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("alphavantage returned HTTP %d for %s", resp.StatusCode, symbol)
	}

	var raw globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, fmt.Errorf("failed to decode quote response: %w", err)
	}

	if raw.Note != "" {
		// Server-side throttle notice; treat like a spent budget
		c.log.Warn().Str("note", raw.Note).Msg("Alpha Vantage throttle notice")
		return 0, ErrRateLimitExceeded{ResetAt: time.Now().Add(time.Minute)}
	}

	if raw.GlobalQuote.Price == "" {
		return 0, ErrNoQuote
	}

	price, err := strconv.ParseFloat(raw.GlobalQuote.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", raw.GlobalQuote.Price, err)
	}
	if price <= 0 {
		return 0, ErrNoQuote
	}

	c.log.Debug().Str("symbol", symbol).Float64("price", price).Msg("Quote fetched")

	return price, nil
}
