package domain

import (
	"errors"
	"fmt"
)

// Business-rule errors. Callers branch on these with errors.Is, so every
// rejected operation must surface one of them rather than a generic failure.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrPositionNotFound   = errors.New("position not found")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrPriceUnavailable   = errors.New("price unavailable")
)

// InvalidArgumentError rejects an order before any state mutation
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a store I/O failure. A mutation that was applied in
// memory but failed to save is reported through this type so the caller never
// sees the operation as successful.
type PersistenceError struct {
	Op  string // load or save
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}
