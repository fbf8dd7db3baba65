package valuation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/folio-hq/folio/internal/domain"
)

// Service computes valuations from ledger state and a price oracle
type Service struct {
	oracle       domain.PriceOracle
	priceTimeout time.Duration
	log          zerolog.Logger
}

// NewService creates a new valuation service
func NewService(oracle domain.PriceOracle, priceTimeout time.Duration, log zerolog.Logger) *Service {
	if priceTimeout <= 0 {
		priceTimeout = 5 * time.Second
	}
	return &Service{
		oracle:       oracle,
		priceTimeout: priceTimeout,
		log:          log.With().Str("service", "valuation").Logger(),
	}
}

// ValuePortfolio marks the portfolio to market. Oracle queries run
// concurrently, each bounded by the per-ticker timeout; a ticker whose price
// is unavailable or slow values at zero so one bad symbol never blocks
// viewing the rest of the portfolio.
func (s *Service) ValuePortfolio(ctx context.Context, p *domain.Portfolio) ValuedPortfolio {
	prices := s.fetchPrices(ctx, p.Positions)

	valued := ValuedPortfolio{
		UserID:    p.UserID,
		Cash:      p.Cash,
		Positions: make([]ValuedPosition, 0, len(p.Positions)),
	}

	totalMarketValue := p.Cash
	totalCostBasis := p.Cash

	for _, pos := range p.Positions {
		currentPrice := prices[pos.Ticker]

		marketValue := pos.Quantity * currentPrice
		costBasis := pos.Quantity * pos.AvgCostBasis
		unrealizedPL := marketValue - costBasis

		unrealizedPLPercent := 0.0
		if costBasis > 0 {
			unrealizedPLPercent = unrealizedPL / costBasis * 100
		}

		valued.Positions = append(valued.Positions, ValuedPosition{
			Ticker:              pos.Ticker,
			Quantity:            pos.Quantity,
			AvgCostBasis:        pos.AvgCostBasis,
			CurrentPrice:        currentPrice,
			MarketValue:         marketValue,
			UnrealizedPL:        unrealizedPL,
			UnrealizedPLPercent: unrealizedPLPercent,
			AddedAt:             pos.AddedAt,
		})

		totalMarketValue += marketValue
		totalCostBasis += costBasis
	}

	valued.TotalValue = totalMarketValue
	valued.TotalPL = totalMarketValue - totalCostBasis
	if totalCostBasis > 0 {
		valued.TotalPLPercent = valued.TotalPL / totalCostBasis * 100
	}

	return valued
}

// fetchPrices queries the oracle for every held ticker concurrently.
// Unavailable prices resolve to zero.
func (s *Service) fetchPrices(ctx context.Context, positions []domain.Position) map[string]float64 {
	prices := make(map[string]float64, len(positions))
	if len(positions) == 0 {
		return prices
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, pos := range positions {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			tickerCtx, cancel := context.WithTimeout(ctx, s.priceTimeout)
			defer cancel()

			price, err := s.oracle.CurrentPrice(tickerCtx, ticker)
			if err != nil {
				s.log.Warn().
					Err(err).
					Str("ticker", ticker).
					Msg("Price unavailable, valuing at zero")
				price = 0
			}

			mu.Lock()
			prices[ticker] = price
			mu.Unlock()
		}(pos.Ticker)
	}

	wg.Wait()
	return prices
}

// Performance computes the performance report against the initial account
// value (the starting cash a portfolio is seeded with).
func (s *Service) Performance(ctx context.Context, p *domain.Portfolio, initialValue float64) PerformanceReport {
	valued := s.ValuePortfolio(ctx, p)

	totalReturn := 0.0
	if initialValue != 0 {
		totalReturn = (valued.TotalValue - initialValue) / initialValue * 100
	}

	return PerformanceReport{
		InitialValue:   initialValue,
		CurrentValue:   valued.TotalValue,
		TotalReturn:    totalReturn,
		TotalPL:        valued.TotalPL,
		TotalPLPercent: valued.TotalPLPercent,
		Cash:           valued.Cash,
		InvestedValue:  valued.TotalValue - valued.Cash,
	}
}

// Concentration reports how concentrated the invested part of the portfolio
// is. Weights are shares of invested market value (cash excluded); HHI is the
// sum of squared weights, and its reciprocal is the effective number of
// holdings.
func (s *Service) Concentration(ctx context.Context, p *domain.Portfolio) ConcentrationReport {
	valued := s.ValuePortfolio(ctx, p)

	invested := valued.TotalValue - valued.Cash

	report := ConcentrationReport{Weights: []PositionWeight{}}
	if invested <= 0 || len(valued.Positions) == 0 {
		return report
	}

	weights := make([]float64, 0, len(valued.Positions))
	for _, pos := range valued.Positions {
		w := pos.MarketValue / invested
		weights = append(weights, w)
		report.Weights = append(report.Weights, PositionWeight{Ticker: pos.Ticker, Weight: w})
	}

	sort.Slice(report.Weights, func(i, j int) bool {
		return report.Weights[i].Weight > report.Weights[j].Weight
	})

	hhi := 0.0
	top := 0.0
	for _, w := range weights {
		hhi += w * w
		if w > top {
			top = w
		}
	}

	report.HHI = hhi
	report.TopWeight = top
	if hhi > 0 {
		report.EffectiveHoldings = 1 / hhi
	}
	if len(weights) > 1 {
		report.WeightStdDev = stat.StdDev(weights, nil)
	}

	// 1.0 when perfectly equal-weighted, approaching 0 as a single position
	// dominates.
	report.DiversificationScore = report.EffectiveHoldings / float64(len(weights))

	return report
}
