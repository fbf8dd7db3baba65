package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/domain"
	"github.com/folio-hq/folio/internal/events"
)

// Service orchestrates ledger operations: load, mutate through the engine,
// save. Mutating operations on the same user are serialized by a per-user
// lock so concurrent buys and sells can never interleave their
// read-modify-write of cash, positions, and the transaction log.
type Service struct {
	store        domain.LedgerStore
	bus          *events.Bus
	startingCash float64
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new ledger service
func NewService(store domain.LedgerStore, bus *events.Bus, startingCash float64, log zerolog.Logger) *Service {
	return &Service{
		store:        store,
		bus:          bus,
		startingCash: startingCash,
		log:          log.With().Str("service", "ledger").Logger(),
		locks:        make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex guarding one user's ledger
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// NormalizeTicker canonicalizes ticker symbols for the whole service
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetOrCreate returns the user's portfolio, lazily seeding a new one with
// the configured starting cash on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*domain.Portfolio, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.store.Load(ctx, userID)
	if err == nil {
		return p, nil
	}
	if err != domain.ErrPortfolioNotFound {
		return nil, domain.PersistenceError{Op: "load", Err: err}
	}

	p = domain.NewPortfolio(userID, s.startingCash)
	if err := s.store.Save(ctx, p); err != nil {
		return nil, domain.PersistenceError{Op: "save", Err: err}
	}

	s.log.Info().
		Str("user_id", userID).
		Float64("starting_cash", s.startingCash).
		Msg("Created portfolio")

	if s.bus != nil {
		s.bus.Publish(events.PortfolioCreated, userID, nil)
	}

	return p, nil
}

// Buy executes a buy order for the user. The order is applied to a clone of
// the loaded portfolio; only a durably saved mutation is reported as
// successful.
func (s *Service) Buy(ctx context.Context, userID, ticker string, quantity, price float64) (domain.Transaction, error) {
	return s.mutate(ctx, userID, ticker, quantity, price, ApplyBuy)
}

// Sell executes a sell order for the user, with the same guarantees as Buy
func (s *Service) Sell(ctx context.Context, userID, ticker string, quantity, price float64) (domain.Transaction, error) {
	return s.mutate(ctx, userID, ticker, quantity, price, ApplySell)
}

func (s *Service) mutate(
	ctx context.Context,
	userID, ticker string,
	quantity, price float64,
	apply func(*domain.Portfolio, string, float64, float64) (domain.Transaction, error),
) (domain.Transaction, error) {
	ticker = NormalizeTicker(ticker)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.store.Load(ctx, userID)
	if err != nil {
		if err == domain.ErrPortfolioNotFound {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, domain.PersistenceError{Op: "load", Err: err}
	}

	working := p.Clone()
	txn, err := apply(working, ticker, quantity, price)
	if err != nil {
		return domain.Transaction{}, err
	}

	if err := s.store.Save(ctx, working); err != nil {
		return domain.Transaction{}, domain.PersistenceError{Op: "save", Err: err}
	}

	s.log.Info().
		Str("user_id", userID).
		Str("txn_id", txn.ID).
		Str("ticker", ticker).
		Str("side", string(txn.Side)).
		Float64("quantity", quantity).
		Float64("price", price).
		Float64("cash_after", working.Cash).
		Msg("Order executed")

	if s.bus != nil {
		s.bus.Publish(events.TradeExecuted, userID, events.TradeExecutedData{
			TransactionID: txn.ID,
			Ticker:        ticker,
			Side:          string(txn.Side),
			Quantity:      quantity,
			Price:         price,
			OrderRef:      txn.OrderRef,
		})
	}

	return txn, nil
}

// ListTransactions returns the user's transaction history in chronological
// order. A user without a portfolio gets an empty list, not an error.
func (s *Service) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	p, err := s.store.Load(ctx, userID)
	if err == domain.ErrPortfolioNotFound {
		return []domain.Transaction{}, nil
	}
	if err != nil {
		return nil, domain.PersistenceError{Op: "load", Err: err}
	}
	return p.Transactions, nil
}

// Get returns the user's portfolio without creating one
func (s *Service) Get(ctx context.Context, userID string) (*domain.Portfolio, error) {
	p, err := s.store.Load(ctx, userID)
	if err != nil {
		if err == domain.ErrPortfolioNotFound {
			return nil, err
		}
		return nil, domain.PersistenceError{Op: "load", Err: err}
	}
	return p, nil
}
