package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS customers (
	user_id        TEXT PRIMARY KEY,
	username       TEXT NOT NULL,
	email          TEXT NOT NULL UNIQUE,
	password_hash  TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	mobile_number  TEXT NOT NULL,
	national_id    TEXT NOT NULL,
	account_number TEXT NOT NULL UNIQUE,
	routing_code   TEXT NOT NULL,
	card_number    TEXT NOT NULL,
	pin_hash       TEXT NOT NULL,
	balance        NUMERIC(15,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	credit_score   INT NOT NULL DEFAULT 600 CHECK (credit_score BETWEEN 0 AND 900),
	loan_amount    NUMERIC(15,2) NOT NULL DEFAULT 0 CHECK (loan_amount >= 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transaction_records (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	account_number   TEXT NOT NULL REFERENCES customers(account_number),
	transaction_type TEXT NOT NULL,
	amount           NUMERIC(15,2) NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transaction_records_account_time
	ON transaction_records (account_number, created_at DESC);
`

// EnsureSchema creates the ledger tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
