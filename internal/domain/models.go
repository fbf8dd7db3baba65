// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// TradeSide represents the direction of a transaction
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Position represents one holding of a single ticker within a portfolio.
// Quantity is strictly positive while the position exists; a position that
// reaches zero quantity is removed from the portfolio, never kept as a zero row.
type Position struct {
	Ticker       string    `json:"ticker"`
	Quantity     float64   `json:"quantity"`
	AvgCostBasis float64   `json:"avgCostBasis"`
	AddedAt      time.Time `json:"addedAt"` // First acquisition, never updated by later buys
}

// Transaction is an immutable record of one executed buy or sell.
// IDs are sequential within a portfolio: txn_1, txn_2, ...
type Transaction struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Side      TradeSide `json:"type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"` // Execution price, independent of current market price
	Fees      float64   `json:"fees"`
	OrderRef  string    `json:"orderRef"` // Opaque unique reference assigned at acceptance
	Timestamp time.Time `json:"timestamp"`
}

// Portfolio is the aggregate root, one per user. Cash is non-negative after
// every accepted mutation; positions are unique by ticker; transactions are
// append-only in chronological order.
type Portfolio struct {
	UserID       string        `json:"userId"`
	Cash         float64       `json:"cash"`
	Positions    []Position    `json:"positions"`
	Transactions []Transaction `json:"transactions"`
}

// NewPortfolio creates an empty portfolio seeded with starting cash
func NewPortfolio(userID string, startingCash float64) *Portfolio {
	return &Portfolio{
		UserID:       userID,
		Cash:         startingCash,
		Positions:    []Position{},
		Transactions: []Transaction{},
	}
}

// FindPosition returns the position for a ticker, or nil when none is held
func (p *Portfolio) FindPosition(ticker string) *Position {
	for i := range p.Positions {
		if p.Positions[i].Ticker == ticker {
			return &p.Positions[i]
		}
	}
	return nil
}

// RemovePosition deletes the position for a ticker, preserving order
func (p *Portfolio) RemovePosition(ticker string) {
	for i := range p.Positions {
		if p.Positions[i].Ticker == ticker {
			p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
			return
		}
	}
}

// NextTransactionID assigns the next sequential transaction id
func (p *Portfolio) NextTransactionID() string {
	return fmt.Sprintf("txn_%d", len(p.Transactions)+1)
}

// Clone returns a deep copy of the portfolio. Mutating operations work on a
// clone so a rejected order leaves the loaded state untouched.
func (p *Portfolio) Clone() *Portfolio {
	clone := &Portfolio{
		UserID:       p.UserID,
		Cash:         p.Cash,
		Positions:    make([]Position, len(p.Positions)),
		Transactions: make([]Transaction, len(p.Transactions)),
	}
	copy(clone.Positions, p.Positions)
	copy(clone.Transactions, p.Transactions)
	return clone
}
