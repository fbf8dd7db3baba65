package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-hq/folio/internal/database"
	"github.com/folio-hq/folio/internal/domain"
)

func newTestRepo(t *testing.T) *PortfolioRepository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(db.Conn()))

	return NewPortfolioRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_LoadMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)
	_, err = ApplyBuy(p, "MSFT", 5, 300)
	require.NoError(t, err)
	_, err = ApplySell(p, "AAPL", 4, 200)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, p))

	loaded, err := repo.Load(ctx, "user_1")
	require.NoError(t, err)

	assert.Equal(t, "user_1", loaded.UserID)
	assert.InDelta(t, p.Cash, loaded.Cash, 1e-9)

	require.Len(t, loaded.Positions, 2)
	byTicker := map[string]domain.Position{}
	for _, pos := range loaded.Positions {
		byTicker[pos.Ticker] = pos
	}
	assert.Equal(t, 6.0, byTicker["AAPL"].Quantity)
	assert.Equal(t, 150.0, byTicker["AAPL"].AvgCostBasis)
	assert.Equal(t, 5.0, byTicker["MSFT"].Quantity)

	require.Len(t, loaded.Transactions, 3)
	assert.Equal(t, "txn_1", loaded.Transactions[0].ID)
	assert.Equal(t, "txn_3", loaded.Transactions[2].ID)
	assert.Equal(t, domain.TradeSideSell, loaded.Transactions[2].Side)
	assert.Equal(t, p.Transactions[0].OrderRef, loaded.Transactions[0].OrderRef)
}

func TestRepository_SaveIsIdempotentOnTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)

	// Saving twice must not duplicate the appended transactions
	require.NoError(t, repo.Save(ctx, p))
	require.NoError(t, repo.Save(ctx, p))

	loaded, err := repo.Load(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, loaded.Transactions, 1)
}

func TestRepository_SaveRejectsLogRegression(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))

	// A portfolio with fewer transactions than the store holds means the
	// caller lost history; the append-only log refuses the write.
	truncated := domain.NewPortfolio("user_1", 100000)
	err = repo.Save(ctx, truncated)
	assert.Error(t, err)
}

func TestRepository_ExistsAndEmptyPortfolio(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Save(ctx, domain.NewPortfolio("user_1", 100000)))

	exists, err = repo.Exists(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := repo.Load(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, loaded.Cash)
	assert.NotNil(t, loaded.Positions)
	assert.Empty(t, loaded.Positions)
	assert.NotNil(t, loaded.Transactions)
	assert.Empty(t, loaded.Transactions)
}

func TestRepository_TimestampsRoundTripAsUnixSeconds(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 1, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, p))

	loaded, err := repo.Load(ctx, "user_1")
	require.NoError(t, err)

	want := p.Transactions[0].Timestamp.Truncate(time.Second)
	assert.True(t, loaded.Transactions[0].Timestamp.Equal(want))
}
