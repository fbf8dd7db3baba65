package valuation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-hq/folio/internal/domain"
)

// stubOracle serves fixed prices; unknown tickers fail
type stubOracle struct {
	prices map[string]float64
	delay  time.Duration
}

func (o *stubOracle) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	price, ok := o.prices[ticker]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

func testPortfolio() *domain.Portfolio {
	return &domain.Portfolio{
		UserID: "user_1",
		Cash:   97800,
		Positions: []domain.Position{
			{Ticker: "AAPL", Quantity: 15, AvgCostBasis: 160, AddedAt: time.Now().UTC()},
		},
		Transactions: []domain.Transaction{},
	}
}

func TestValuePortfolio(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{"AAPL": 180}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	valued := svc.ValuePortfolio(context.Background(), testPortfolio())

	require.Len(t, valued.Positions, 1)
	pos := valued.Positions[0]
	assert.Equal(t, 180.0, pos.CurrentPrice)
	assert.Equal(t, 2700.0, pos.MarketValue)
	assert.Equal(t, 300.0, pos.UnrealizedPL)
	assert.InDelta(t, 12.5, pos.UnrealizedPLPercent, 1e-9)

	assert.InDelta(t, 97800+2700, valued.TotalValue, 1e-9)
	assert.InDelta(t, 300, valued.TotalPL, 1e-9)
}

func TestValuePortfolio_UnavailablePriceValuesAtZero(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	valued := svc.ValuePortfolio(context.Background(), testPortfolio())

	require.Len(t, valued.Positions, 1)
	assert.Equal(t, 0.0, valued.Positions[0].CurrentPrice)
	assert.Equal(t, 0.0, valued.Positions[0].MarketValue)
	assert.Equal(t, -2400.0, valued.Positions[0].UnrealizedPL)
	assert.InDelta(t, 97800.0, valued.TotalValue, 1e-9)
}

func TestValuePortfolio_SlowOracleTimesOutToZero(t *testing.T) {
	oracle := &stubOracle{
		prices: map[string]float64{"AAPL": 180},
		delay:  200 * time.Millisecond,
	}
	svc := NewService(oracle, 10*time.Millisecond, zerolog.Nop())

	start := time.Now()
	valued := svc.ValuePortfolio(context.Background(), testPortfolio())

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 0.0, valued.Positions[0].CurrentPrice)
}

func TestValuePortfolio_ZeroCostBasisGuard(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{"FREE": 10}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	p := &domain.Portfolio{
		UserID: "user_1",
		Cash:   0,
		Positions: []domain.Position{
			{Ticker: "FREE", Quantity: 5, AvgCostBasis: 0},
		},
	}

	valued := svc.ValuePortfolio(context.Background(), p)

	require.Len(t, valued.Positions, 1)
	assert.Equal(t, 50.0, valued.Positions[0].MarketValue)
	assert.Equal(t, 0.0, valued.Positions[0].UnrealizedPLPercent)
	assert.False(t, math.IsNaN(valued.TotalPLPercent))
	assert.False(t, math.IsInf(valued.TotalPLPercent, 0))
}

func TestValuePortfolio_EmptyPortfolio(t *testing.T) {
	svc := NewService(&stubOracle{}, time.Second, zerolog.Nop())

	valued := svc.ValuePortfolio(context.Background(), domain.NewPortfolio("user_1", 100000))

	assert.Equal(t, 100000.0, valued.TotalValue)
	assert.Equal(t, 0.0, valued.TotalPL)
	assert.Equal(t, 0.0, valued.TotalPLPercent)
	assert.Empty(t, valued.Positions)
}

func TestPerformance(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{"AAPL": 180}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	report := svc.Performance(context.Background(), testPortfolio(), 100000)

	assert.Equal(t, 100000.0, report.InitialValue)
	assert.InDelta(t, 100500.0, report.CurrentValue, 1e-9)
	assert.InDelta(t, 0.5, report.TotalReturn, 1e-9)
	assert.InDelta(t, 97800.0, report.Cash, 1e-9)
	assert.InDelta(t, 2700.0, report.InvestedValue, 1e-9)
}

func TestPerformance_ZeroInitialValue(t *testing.T) {
	svc := NewService(&stubOracle{}, time.Second, zerolog.Nop())

	report := svc.Performance(context.Background(), domain.NewPortfolio("user_1", 0), 0)
	assert.Equal(t, 0.0, report.TotalReturn)
}

func TestConcentration(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{"AAPL": 100, "MSFT": 100, "GOOG": 100}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	p := &domain.Portfolio{
		UserID: "user_1",
		Cash:   1000,
		Positions: []domain.Position{
			{Ticker: "AAPL", Quantity: 6, AvgCostBasis: 90},
			{Ticker: "MSFT", Quantity: 3, AvgCostBasis: 90},
			{Ticker: "GOOG", Quantity: 1, AvgCostBasis: 90},
		},
	}

	report := svc.Concentration(context.Background(), p)

	require.Len(t, report.Weights, 3)
	// Sorted descending by weight
	assert.Equal(t, "AAPL", report.Weights[0].Ticker)
	assert.InDelta(t, 0.6, report.Weights[0].Weight, 1e-9)
	assert.InDelta(t, 0.6, report.TopWeight, 1e-9)

	wantHHI := 0.36 + 0.09 + 0.01
	assert.InDelta(t, wantHHI, report.HHI, 1e-9)
	assert.InDelta(t, 1/wantHHI, report.EffectiveHoldings, 1e-9)
	assert.InDelta(t, (1/wantHHI)/3, report.DiversificationScore, 1e-9)
	assert.Greater(t, report.WeightStdDev, 0.0)
}

func TestConcentration_SinglePosition(t *testing.T) {
	oracle := &stubOracle{prices: map[string]float64{"AAPL": 100}}
	svc := NewService(oracle, time.Second, zerolog.Nop())

	p := &domain.Portfolio{
		UserID:    "user_1",
		Cash:      0,
		Positions: []domain.Position{{Ticker: "AAPL", Quantity: 10, AvgCostBasis: 90}},
	}

	report := svc.Concentration(context.Background(), p)

	assert.InDelta(t, 1.0, report.HHI, 1e-9)
	assert.InDelta(t, 1.0, report.EffectiveHoldings, 1e-9)
	assert.InDelta(t, 1.0, report.DiversificationScore, 1e-9)
	assert.Equal(t, 0.0, report.WeightStdDev)
}

func TestConcentration_NoHoldings(t *testing.T) {
	svc := NewService(&stubOracle{}, time.Second, zerolog.Nop())

	report := svc.Concentration(context.Background(), domain.NewPortfolio("user_1", 100000))

	assert.Empty(t, report.Weights)
	assert.Equal(t, 0.0, report.HHI)
	assert.Equal(t, 0.0, report.EffectiveHoldings)
}
