package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-hq/folio/internal/domain"
)

func TestApplyBuy_NewPosition(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	txn, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)

	assert.Equal(t, "txn_1", txn.ID)
	assert.Equal(t, domain.TradeSideBuy, txn.Side)
	assert.Equal(t, 10.0, txn.Quantity)
	assert.Equal(t, 150.0, txn.Price)
	assert.NotEmpty(t, txn.OrderRef)

	assert.Equal(t, 98500.0, p.Cash)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "AAPL", p.Positions[0].Ticker)
	assert.Equal(t, 10.0, p.Positions[0].Quantity)
	assert.Equal(t, 150.0, p.Positions[0].AvgCostBasis)
	assert.Len(t, p.Transactions, 1)
}

func TestApplyBuy_WeightedAverageCostBasis(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	_, err := ApplyBuy(p, "AAPL", 10, 100)
	require.NoError(t, err)
	firstAddedAt := p.Positions[0].AddedAt

	_, err = ApplyBuy(p, "AAPL", 10, 200)
	require.NoError(t, err)

	require.Len(t, p.Positions, 1)
	assert.Equal(t, 20.0, p.Positions[0].Quantity)
	assert.Equal(t, 150.0, p.Positions[0].AvgCostBasis)
	assert.Equal(t, firstAddedAt, p.Positions[0].AddedAt)
	assert.Equal(t, 100000.0-1000-2000, p.Cash)
}

func TestApplyBuy_ExactCashAllowed(t *testing.T) {
	p := domain.NewPortfolio("user_1", 1500)

	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Cash)
}

func TestApplyBuy_InsufficientFunds(t *testing.T) {
	p := domain.NewPortfolio("user_1", 1000)

	_, err := ApplyBuy(p, "AAPL", 10, 150)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Rejected order leaves the portfolio untouched
	assert.Equal(t, 1000.0, p.Cash)
	assert.Empty(t, p.Positions)
	assert.Empty(t, p.Transactions)
}

func TestApplyBuy_Validation(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	tests := []struct {
		name     string
		ticker   string
		quantity float64
		price    float64
	}{
		{"empty ticker", "", 10, 150},
		{"zero quantity", "AAPL", 0, 150},
		{"negative quantity", "AAPL", -5, 150},
		{"negative price", "AAPL", 10, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyBuy(p, tt.ticker, tt.quantity, tt.price)
			var invalidErr domain.InvalidArgumentError
			assert.ErrorAs(t, err, &invalidErr)
		})
	}

	assert.Equal(t, 100000.0, p.Cash)
	assert.Empty(t, p.Transactions)
}

func TestApplyBuy_ZeroPriceAllowed(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	_, err := ApplyBuy(p, "AAPL", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Cash)
	assert.Equal(t, 0.0, p.Positions[0].AvgCostBasis)
}

func TestApplySell_Partial(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)

	txn, err := ApplySell(p, "AAPL", 4, 200)
	require.NoError(t, err)

	assert.Equal(t, "txn_2", txn.ID)
	assert.Equal(t, domain.TradeSideSell, txn.Side)

	require.Len(t, p.Positions, 1)
	assert.Equal(t, 6.0, p.Positions[0].Quantity)
	// Selling never rewrites the cost basis
	assert.Equal(t, 150.0, p.Positions[0].AvgCostBasis)
	assert.Equal(t, 98500.0+800, p.Cash)
}

func TestApplySell_FullRemovesPosition(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)

	_, err = ApplySell(p, "AAPL", 10, 200)
	require.NoError(t, err)

	assert.Empty(t, p.Positions)
	assert.Equal(t, 98500.0+2000, p.Cash)
	assert.Len(t, p.Transactions, 2)
}

func TestApplySell_PositionNotFound(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	_, err := ApplySell(p, "AAPL", 1, 150)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestApplySell_InsufficientShares(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)
	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)

	_, err = ApplySell(p, "AAPL", 11, 150)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	assert.Equal(t, 10.0, p.Positions[0].Quantity)
	assert.Equal(t, 98500.0, p.Cash)
	assert.Len(t, p.Transactions, 1)
}

func TestTransactionIDsAreSequential(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	for i := 0; i < 3; i++ {
		_, err := ApplyBuy(p, "AAPL", 1, 100)
		require.NoError(t, err)
	}
	_, err := ApplySell(p, "AAPL", 1, 100)
	require.NoError(t, err)

	assert.Equal(t, "txn_1", p.Transactions[0].ID)
	assert.Equal(t, "txn_2", p.Transactions[1].ID)
	assert.Equal(t, "txn_3", p.Transactions[2].ID)
	assert.Equal(t, "txn_4", p.Transactions[3].ID)
}

// Mirrors a full trading session end to end: two buys averaging into one
// position, then a partial sell.
func TestApplyScenario(t *testing.T) {
	p := domain.NewPortfolio("user_1", 100000)

	_, err := ApplyBuy(p, "AAPL", 10, 150)
	require.NoError(t, err)
	assert.Equal(t, 98500.0, p.Cash)

	_, err = ApplyBuy(p, "AAPL", 10, 170)
	require.NoError(t, err)
	assert.Equal(t, 96800.0, p.Cash)
	assert.Equal(t, 160.0, p.Positions[0].AvgCostBasis)

	_, err = ApplySell(p, "AAPL", 5, 200)
	require.NoError(t, err)
	assert.Equal(t, 97800.0, p.Cash)
	assert.Equal(t, 15.0, p.Positions[0].Quantity)
	assert.Equal(t, 160.0, p.Positions[0].AvgCostBasis)
}
