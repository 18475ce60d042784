package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend reads and patches ledger records kept in PostgreSQL. See
// migrations/0001_store.sql for the expected tables.
type PostgresBackend struct {
	db *pgxpool.Pool
}

// NewPostgresBackend constructs a Postgres-backed store.
func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// ListDirectory returns every row of the directory table.
func (b *PostgresBackend) ListDirectory(ctx context.Context) ([]DirectoryRecord, error) {
	rows, err := b.db.Query(ctx, `SELECT account_id, routing_code, name FROM directory ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer rows.Close()

	var out []DirectoryRecord
	for rows.Next() {
		var rec DirectoryRecord
		if err := rows.Scan(&rec.AccountID, &rec.RoutingCode, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directory: %w", err)
	}
	return out, nil
}

// FindAccount fetches the ledger row for an external account id.
func (b *PostgresBackend) FindAccount(ctx context.Context, accountID string) (Account, error) {
	const query = `SELECT id, account_id, balance, status FROM accounts WHERE account_id = $1`
	var (
		id     uuid.UUID
		acc    Account
		status string
	)
	if err := b.db.QueryRow(ctx, query, accountID).Scan(&id, &acc.AccountID, &acc.Balance, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account %s: %w", accountID, err)
	}
	acc.InternalRecordID = id.String()
	acc.Status = ParseStatus(status)
	return acc, nil
}

// PatchBalance overwrites only the balance column of the row.
func (b *PostgresBackend) PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error {
	id, err := uuid.Parse(internalRecordID)
	if err != nil {
		return fmt.Errorf("parse record id: %w", err)
	}
	cmd, err := b.db.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, newBalance, id)
	if err != nil {
		return fmt.Errorf("patch balance: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AppendHistory inserts a row into transfer_history.
func (b *PostgresBackend) AppendHistory(ctx context.Context, record TransferRecord) error {
	_, err := b.db.Exec(ctx, `INSERT INTO transfer_history (id, transfer_id, sender_account_id, receiver_account_id, amount, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), record.ID, record.SenderAccountID, record.ReceiverAccountID, record.Amount, record.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
