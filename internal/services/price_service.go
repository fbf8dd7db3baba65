// Package services holds shared services that cut across modules.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/folio-hq/folio/internal/domain"
)

// QuoteClient is the contract a quote provider must satisfy
type QuoteClient interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// priceCacheSchema backs the persistent quote cache (cache-profile database,
// safe to lose).
const priceCacheSchema = `
CREATE TABLE IF NOT EXISTS price_cache (
    ticker TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    fetched_at INTEGER NOT NULL
);
`

// cachedQuote is the msgpack-encoded cache payload
type cachedQuote struct {
	Price     float64   `msgpack:"price"`
	Source    string    `msgpack:"source"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// PriceService implements domain.PriceOracle as a chain: persistent cache,
// then each configured provider in order. The first usable quote wins and is
// written back to the cache.
type PriceService struct {
	providers []namedProvider
	cacheDB   *sql.DB
	ttl       time.Duration
	log       zerolog.Logger
}

type namedProvider struct {
	name   string
	client QuoteClient
}

var _ domain.PriceOracle = (*PriceService)(nil)

// NewPriceService creates a new price service. cacheDB may be nil, in which
// case quotes are fetched fresh on every call.
func NewPriceService(cacheDB *sql.DB, ttl time.Duration, log zerolog.Logger) (*PriceService, error) {
	if cacheDB != nil {
		if _, err := cacheDB.Exec(priceCacheSchema); err != nil {
			return nil, fmt.Errorf("failed to initialize price cache schema: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PriceService{
		cacheDB: cacheDB,
		ttl:     ttl,
		log:     log.With().Str("service", "pricing").Logger(),
	}, nil
}

// AddProvider appends a quote provider to the fallback chain
func (s *PriceService) AddProvider(name string, client QuoteClient) {
	s.providers = append(s.providers, namedProvider{name: name, client: client})
}

// CurrentPrice resolves a ticker to its latest known price. Returns
// domain.ErrPriceUnavailable (wrapped) when no provider has a quote.
func (s *PriceService) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	if cached, ok := s.fromCache(ticker); ok {
		return cached, nil
	}

	var lastErr error
	for _, p := range s.providers {
		price, err := p.client.Quote(ctx, ticker)
		if err == nil {
			s.toCache(ticker, price, p.name)
			return price, nil
		}
		lastErr = err
		s.log.Debug().
			Err(err).
			Str("provider", p.name).
			Str("ticker", ticker).
			Msg("Provider had no quote, trying next")

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		return 0, fmt.Errorf("%w for %s: %v", domain.ErrPriceUnavailable, ticker, lastErr)
	}
	return 0, fmt.Errorf("%w for %s", domain.ErrPriceUnavailable, ticker)
}

func (s *PriceService) fromCache(ticker string) (float64, bool) {
	if s.cacheDB == nil {
		return 0, false
	}

	var payload []byte
	err := s.cacheDB.QueryRow(
		"SELECT payload FROM price_cache WHERE ticker = ?", ticker).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Price cache read failed")
		}
		return 0, false
	}

	var quote cachedQuote
	if err := msgpack.Unmarshal(payload, &quote); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Corrupt price cache entry, ignoring")
		return 0, false
	}

	if time.Since(quote.FetchedAt) > s.ttl {
		return 0, false
	}

	return quote.Price, true
}

func (s *PriceService) toCache(ticker string, price float64, source string) {
	if s.cacheDB == nil {
		return
	}

	payload, err := msgpack.Marshal(cachedQuote{
		Price:     price,
		Source:    source,
		FetchedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to encode cache entry")
		return
	}

	_, err = s.cacheDB.Exec(`INSERT INTO price_cache (ticker, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		ticker, payload, time.Now().Unix())
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Price cache write failed")
	}
}

// SweepExpired deletes cache rows older than the TTL. Called by the
// maintenance job.
func (s *PriceService) SweepExpired() error {
	if s.cacheDB == nil {
		return nil
	}
	cutoff := time.Now().Add(-s.ttl).Unix()
	res, err := s.cacheDB.Exec("DELETE FROM price_cache WHERE fetched_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep price cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug().Int64("rows", n).Msg("Swept expired price cache entries")
	}
	return nil
}
