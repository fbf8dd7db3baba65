package ledger

import "database/sql"

// Schema for the ledger database: one portfolio row per user, positions
// unique per (user, ticker), and the append-only transaction log ordered by
// seq. seq is the numeric part of the txn_<n> id.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
    user_id TEXT PRIMARY KEY,
    cash REAL NOT NULL CHECK (cash >= 0),
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    user_id TEXT NOT NULL,
    ticker TEXT NOT NULL,
    quantity REAL NOT NULL CHECK (quantity > 0),
    avg_cost_basis REAL NOT NULL CHECK (avg_cost_basis >= 0),
    added_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, ticker),
    FOREIGN KEY (user_id) REFERENCES portfolios(user_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    user_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    txn_id TEXT NOT NULL,
    ticker TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
    quantity REAL NOT NULL CHECK (quantity > 0),
    price REAL NOT NULL CHECK (price >= 0),
    fees REAL NOT NULL DEFAULT 0,
    order_ref TEXT NOT NULL,
    executed_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, seq),
    FOREIGN KEY (user_id) REFERENCES portfolios(user_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_ticker ON transactions(user_id, ticker);
`

// InitSchema ensures the ledger tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
