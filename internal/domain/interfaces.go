package domain

import "context"

// PriceOracle resolves a ticker to a current price. Implementations return
// ErrPriceUnavailable (possibly wrapped) when no quote exists; callers decide
// how to degrade. The context bounds the lookup.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
}

// LedgerStore loads and saves portfolio records keyed by user identifier.
// Load returns ErrPortfolioNotFound when no record exists for the user.
type LedgerStore interface {
	Load(ctx context.Context, userID string) (*Portfolio, error)
	Save(ctx context.Context, portfolio *Portfolio) error
	Exists(ctx context.Context, userID string) (bool, error)
}
