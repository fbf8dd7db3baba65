package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/database"
	"github.com/folio-hq/folio/internal/domain"
)

// PortfolioRepository is the SQLite-backed LedgerStore. One portfolio per
// user; Save replaces the current state and appends any new transactions in
// a single database transaction.
type PortfolioRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(ledgerDB *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "portfolio").Logger(),
	}
}

var _ domain.LedgerStore = (*PortfolioRepository)(nil)

// Exists reports whether a portfolio record exists for the user
func (r *PortfolioRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRowContext(ctx,
		"SELECT 1 FROM portfolios WHERE user_id = ?", userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio existence: %w", err)
	}
	return true, nil
}

// Load reads the full portfolio record for a user. Returns
// domain.ErrPortfolioNotFound when no record exists. Positions and
// transactions are read inside one read transaction so a concurrent Save can
// never be observed half-applied.
func (r *PortfolioRepository) Load(ctx context.Context, userID string) (*domain.Portfolio, error) {
	tx, err := r.ledgerDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p := &domain.Portfolio{UserID: userID}

	err = tx.QueryRowContext(ctx,
		"SELECT cash FROM portfolios WHERE user_id = ?", userID).Scan(&p.Cash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}

	positions, err := r.loadPositions(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	p.Positions = positions

	transactions, err := r.loadTransactions(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	p.Transactions = transactions

	return p, nil
}

func (r *PortfolioRepository) loadPositions(ctx context.Context, tx *sql.Tx, userID string) ([]domain.Position, error) {
	rows, err := tx.QueryContext(ctx, `SELECT ticker, quantity, avg_cost_basis, added_at
		FROM positions WHERE user_id = ? ORDER BY added_at, ticker`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		var pos domain.Position
		var addedAt int64
		if err := rows.Scan(&pos.Ticker, &pos.Quantity, &pos.AvgCostBasis, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.AddedAt = time.Unix(addedAt, 0).UTC()
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

func (r *PortfolioRepository) loadTransactions(ctx context.Context, tx *sql.Tx, userID string) ([]domain.Transaction, error) {
	rows, err := tx.QueryContext(ctx, `SELECT txn_id, ticker, side, quantity, price, fees, order_ref, executed_at
		FROM transactions WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var txn domain.Transaction
		var side string
		var executedAt int64
		if err := rows.Scan(&txn.ID, &txn.Ticker, &side, &txn.Quantity, &txn.Price,
			&txn.Fees, &txn.OrderRef, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Side = domain.TradeSide(side)
		txn.Timestamp = time.Unix(executedAt, 0).UTC()
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// Save writes the portfolio state durably. Cash and positions are replaced,
// transactions past the stored count are appended; the transaction log itself
// is never rewritten. All of it commits or none of it does.
func (r *PortfolioRepository) Save(ctx context.Context, p *domain.Portfolio) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("portfolio with user id is required")
	}

	err := database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		now := time.Now().Unix()

		_, err := tx.ExecContext(ctx, `INSERT INTO portfolios (user_id, cash, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET cash = excluded.cash`,
			p.UserID, p.Cash, now)
		if err != nil {
			return fmt.Errorf("failed to upsert portfolio: %w", err)
		}

		// Positions are few per user; replacing them wholesale keeps the
		// store in lock-step with the in-memory aggregate.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM positions WHERE user_id = ?", p.UserID); err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}

		for _, pos := range p.Positions {
			_, err := tx.ExecContext(ctx, `INSERT INTO positions
				(user_id, ticker, quantity, avg_cost_basis, added_at)
				VALUES (?, ?, ?, ?, ?)`,
				p.UserID, pos.Ticker,
				pos.Quantity, pos.AvgCostBasis, pos.AddedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to insert position %s: %w", pos.Ticker, err)
			}
		}

		var stored int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM transactions WHERE user_id = ?", p.UserID).Scan(&stored); err != nil {
			return fmt.Errorf("failed to count stored transactions: %w", err)
		}
		if stored > len(p.Transactions) {
			return fmt.Errorf("transaction log regression: store has %d, portfolio has %d",
				stored, len(p.Transactions))
		}

		for i := stored; i < len(p.Transactions); i++ {
			txn := p.Transactions[i]
			_, err := tx.ExecContext(ctx, `INSERT INTO transactions
				(user_id, seq, txn_id, ticker, side, quantity, price, fees, order_ref, executed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.UserID, i+1, txn.ID, txn.Ticker,
				string(txn.Side), txn.Quantity, txn.Price, txn.Fees,
				txn.OrderRef, txn.Timestamp.Unix())
			if err != nil {
				return fmt.Errorf("failed to append transaction %s: %w", txn.ID, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Str("user_id", p.UserID).
		Float64("cash", p.Cash).
		Int("positions", len(p.Positions)).
		Int("transactions", len(p.Transactions)).
		Msg("Portfolio saved")

	return nil
}
