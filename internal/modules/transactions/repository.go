// Package transactions handles persistence for imported card transactions.
package transactions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository handles transaction persistence in cards.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// ListByAccount returns all transactions for one account, newest posted
// first. The cycle engine re-sorts internally, so callers may rely on any
// order they like.
//
// Parameters:
//   - accountID: the account identifier
//
// Returns:
//   - []domain.Transaction: the account's transactions
//   - error: database errors
func (r *Repository) ListByAccount(accountID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, amount, posted_at, authorized_at, pending, description
		FROM transactions
		WHERE account_id = ?
		ORDER BY posted_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}

	return txns, rows.Err()
}

// UpsertAll writes an imported transaction batch inside a single
// transaction. Provider re-imports overwrite existing rows by id, which is
// how a pending transaction becomes posted.
func (r *Repository) UpsertAll(txnsToWrite []domain.Transaction) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO transactions (
			id, account_id, amount, posted_at, authorized_at, pending, description
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			amount = excluded.amount,
			posted_at = excluded.posted_at,
			authorized_at = excluded.authorized_at,
			pending = excluded.pending,
			description = excluded.description
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction upsert: %w", err)
	}
	defer stmt.Close()

	for i := range txnsToWrite {
		t := &txnsToWrite[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}

		var authorized interface{}
		if t.AuthorizedAt != nil {
			authorized = t.AuthorizedAt.Format(dateLayout)
		}

		_, err := stmt.Exec(
			t.ID,
			t.AccountID,
			t.Amount,
			t.PostedAt.Format(dateLayout),
			authorized,
			boolToInt(t.Pending),
			t.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction import: %w", err)
	}

	r.log.Debug().Int("count", len(txnsToWrite)).Msg("Transactions imported")
	return nil
}

// DeleteByAccount removes all transactions for an account.
func (r *Repository) DeleteByAccount(accountID string) error {
	_, err := r.db.Exec(`DELETE FROM transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete transactions for %s: %w", accountID, err)
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		postedAt   string
		authorized sql.NullString
		pending    int
	)

	err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &postedAt, &authorized, &pending, &t.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.PostedAt, err = time.Parse(dateLayout, postedAt); err != nil {
		return nil, fmt.Errorf("failed to parse posted date %q: %w", postedAt, err)
	}
	if authorized.Valid && authorized.String != "" {
		d, err := time.Parse(dateLayout, authorized.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse authorized date %q: %w", authorized.String, err)
		}
		t.AuthorizedAt = &d
	}
	t.Pending = pending != 0

	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
