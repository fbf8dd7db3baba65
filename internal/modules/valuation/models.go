// Package valuation derives the price-dependent view of a portfolio: market
// values, unrealized P&L, performance and concentration metrics. It only
// reads ledger state; derived figures are recomputed on every call and never
// written back as ledger truth.
package valuation

import "time"

// ValuedPosition is a position enriched with current-price metrics
type ValuedPosition struct {
	Ticker              string    `json:"ticker"`
	Quantity            float64   `json:"quantity"`
	AvgCostBasis        float64   `json:"avgCostBasis"`
	CurrentPrice        float64   `json:"currentPrice"`
	MarketValue         float64   `json:"marketValue"`
	UnrealizedPL        float64   `json:"unrealizedPL"`
	UnrealizedPLPercent float64   `json:"unrealizedPLPercent"`
	AddedAt             time.Time `json:"addedAt"`
}

// ValuedPortfolio is the full mark-to-market view
type ValuedPortfolio struct {
	UserID         string           `json:"userId"`
	Cash           float64          `json:"cash"`
	Positions      []ValuedPosition `json:"positions"`
	TotalValue     float64          `json:"totalValue"`
	TotalPL        float64          `json:"totalPL"`
	TotalPLPercent float64          `json:"totalPLPercent"`
}

// PerformanceReport summarizes returns against the initial account value
type PerformanceReport struct {
	InitialValue   float64 `json:"initialValue"`
	CurrentValue   float64 `json:"currentValue"`
	TotalReturn    float64 `json:"totalReturn"`
	TotalPL        float64 `json:"totalPL"`
	TotalPLPercent float64 `json:"totalPLPercent"`
	Cash           float64 `json:"cash"`
	InvestedValue  float64 `json:"investedValue"`
}

// PositionWeight is one position's share of invested market value
type PositionWeight struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// ConcentrationReport describes how concentrated the invested portfolio is
type ConcentrationReport struct {
	Weights              []PositionWeight `json:"weights"`
	HHI                  float64          `json:"hhi"`
	EffectiveHoldings    float64          `json:"effectiveHoldings"`
	TopWeight            float64          `json:"topWeight"`
	WeightStdDev         float64          `json:"weightStdDev"`
	DiversificationScore float64          `json:"diversificationScore"`
}
