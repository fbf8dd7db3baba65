// Package ledger implements the authoritative portfolio ledger: cash,
// positions, and the append-only transaction history, plus the rules for how
// buy and sell orders transform them.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/folio-hq/folio/internal/domain"
)

// ApplyBuy executes a buy order against the portfolio and returns the created
// transaction. The mutation is all-or-nothing: on error the portfolio is left
// byte-for-byte unchanged (validation runs before any write, and the cash
// check precedes the first mutation).
//
// Buying with exactly the available cash is permitted and zeroes cash.
func ApplyBuy(p *domain.Portfolio, ticker string, quantity, price float64) (domain.Transaction, error) {
	if err := validateOrder(ticker, quantity, price); err != nil {
		return domain.Transaction{}, err
	}

	totalCost := quantity * price
	if p.Cash < totalCost {
		return domain.Transaction{}, domain.ErrInsufficientFunds
	}

	now := time.Now().UTC()

	p.Cash -= totalCost

	if pos := p.FindPosition(ticker); pos != nil {
		// Weighted-average cost basis across the old lot and the new one.
		// AddedAt stays at first acquisition.
		totalQuantity := pos.Quantity + quantity
		totalCostBasis := pos.Quantity*pos.AvgCostBasis + quantity*price
		pos.AvgCostBasis = totalCostBasis / totalQuantity
		pos.Quantity = totalQuantity
	} else {
		p.Positions = append(p.Positions, domain.Position{
			Ticker:       ticker,
			Quantity:     quantity,
			AvgCostBasis: price,
			AddedAt:      now,
		})
	}

	txn := domain.Transaction{
		ID:        p.NextTransactionID(),
		Ticker:    ticker,
		Side:      domain.TradeSideBuy,
		Quantity:  quantity,
		Price:     price,
		Fees:      0,
		OrderRef:  uuid.New().String(),
		Timestamp: now,
	}
	p.Transactions = append(p.Transactions, txn)

	return txn, nil
}

// ApplySell executes a sell order against the portfolio and returns the
// created transaction. Selling exactly the held quantity is permitted and
// removes the position entirely; the average cost basis is never changed by
// a sell. Same all-or-nothing guarantee as ApplyBuy.
func ApplySell(p *domain.Portfolio, ticker string, quantity, price float64) (domain.Transaction, error) {
	if err := validateOrder(ticker, quantity, price); err != nil {
		return domain.Transaction{}, err
	}

	pos := p.FindPosition(ticker)
	if pos == nil {
		return domain.Transaction{}, domain.ErrPositionNotFound
	}
	if pos.Quantity < quantity {
		return domain.Transaction{}, domain.ErrInsufficientShares
	}

	now := time.Now().UTC()

	p.Cash += quantity * price
	pos.Quantity -= quantity

	if pos.Quantity == 0 {
		p.RemovePosition(ticker)
	}

	txn := domain.Transaction{
		ID:        p.NextTransactionID(),
		Ticker:    ticker,
		Side:      domain.TradeSideSell,
		Quantity:  quantity,
		Price:     price,
		Fees:      0,
		OrderRef:  uuid.New().String(),
		Timestamp: now,
	}
	p.Transactions = append(p.Transactions, txn)

	return txn, nil
}

// validateOrder rejects malformed orders before any state is touched
func validateOrder(ticker string, quantity, price float64) error {
	if ticker == "" {
		return domain.InvalidArgumentError{Field: "ticker", Reason: "must not be empty"}
	}
	if quantity <= 0 {
		return domain.InvalidArgumentError{Field: "quantity", Reason: "must be positive"}
	}
	if price < 0 {
		return domain.InvalidArgumentError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}
