package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-hq/folio/internal/domain"
	"github.com/folio-hq/folio/internal/events"
)

// memStore is an in-memory LedgerStore for service tests
type memStore struct {
	mu         sync.Mutex
	portfolios map[string]*domain.Portfolio
	failSave   error
}

func newMemStore() *memStore {
	return &memStore{portfolios: make(map[string]*domain.Portfolio)}
}

func (s *memStore) Load(ctx context.Context, userID string) (*domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, p *domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.portfolios[p.UserID] = p.Clone()
	return nil
}

func (s *memStore) Exists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.portfolios[userID]
	return ok, nil
}

func newTestService(store domain.LedgerStore) *Service {
	return NewService(store, events.NewBus(zerolog.Nop()), 100000, zerolog.Nop())
}

func TestService_GetOrCreateSeedsStartingCash(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Cash)
	assert.Empty(t, p.Positions)

	// Second call returns the persisted portfolio, not a fresh one
	_, err = svc.Buy(ctx, "user_1", "AAPL", 1, 100)
	require.NoError(t, err)

	p, err = svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 99900.0, p.Cash)
}

func TestService_BuyRequiresPortfolio(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.Buy(context.Background(), "user_1", "AAPL", 1, 100)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestService_BuyNormalizesTicker(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)

	txn, err := svc.Buy(ctx, "user_1", "  aapl ", 2, 100)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", txn.Ticker)

	// A sell with a differently-cased symbol hits the same position
	_, err = svc.Sell(ctx, "user_1", "aApL", 2, 100)
	require.NoError(t, err)

	p, err := svc.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
}

func TestService_SaveFailureIsNotReportedAsSuccess(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)

	store.failSave = errors.New("disk full")
	_, err = svc.Buy(ctx, "user_1", "AAPL", 1, 100)

	var pErr domain.PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "save", pErr.Op)

	// The stored portfolio is unchanged
	store.failSave = nil
	p, err := svc.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Cash)
	assert.Empty(t, p.Transactions)
}

func TestService_ListTransactions(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	// No portfolio yields an empty list, not an error
	txns, err := svc.ListTransactions(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, txns)

	_, err = svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)
	_, err = svc.Buy(ctx, "user_1", "AAPL", 1, 100)
	require.NoError(t, err)
	_, err = svc.Sell(ctx, "user_1", "AAPL", 1, 110)
	require.NoError(t, err)

	txns, err = svc.ListTransactions(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "txn_1", txns[0].ID)
	assert.Equal(t, "txn_2", txns[1].ID)
}

func TestService_ConcurrentBuysNeverOverspend(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, 1000, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)

	// 20 concurrent buys at 100 each against 1000 cash: exactly 10 can win
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Buy(ctx, "user_1", "AAPL", 1, 100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	p, err := svc.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Cash)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, 10.0, p.Positions[0].Quantity)
	assert.Len(t, p.Transactions, 10)
}

func TestService_PublishesTradeEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	svc := NewService(newMemStore(), bus, 100000, zerolog.Nop())
	ctx := context.Background()

	ch, unsubscribe := bus.Subscribe(10)
	defer unsubscribe()

	_, err := svc.GetOrCreate(ctx, "user_1")
	require.NoError(t, err)
	_, err = svc.Buy(ctx, "user_1", "AAPL", 1, 100)
	require.NoError(t, err)

	created := <-ch
	assert.Equal(t, events.PortfolioCreated, created.Type)

	traded := <-ch
	assert.Equal(t, events.TradeExecuted, traded.Type)
	data, ok := traded.Data.(events.TradeExecutedData)
	require.True(t, ok)
	assert.Equal(t, "txn_1", data.TransactionID)
	assert.Equal(t, "AAPL", data.Ticker)
	assert.Equal(t, "buy", data.Side)
}
