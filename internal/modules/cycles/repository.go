package cycles

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

// Repository handles billing-cycle persistence in cards.db.
// Cycles are keyed by (account_id, start_date); every write fully recomputes
// and overwrites the derived fields rather than patching incrementally, so
// late-arriving or corrected transactions self-heal on the next run.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new billing-cycle repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "billing_cycles").Logger(),
	}
}

// Upsert inserts or updates one derived cycle. The (account_id, start_date)
// key makes the operation idempotent: repeated runs with identical inputs
// leave identical rows, and the stored id survives updates.
func (r *Repository) Upsert(cycle *domain.BillingCycle) error {
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}

	query := `
		INSERT INTO billing_cycles (
			id, account_id, start_date, end_date,
			total_spend, transaction_count,
			statement_balance, minimum_payment, due_date, last_updated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, start_date) DO UPDATE SET
			end_date = excluded.end_date,
			total_spend = excluded.total_spend,
			transaction_count = excluded.transaction_count,
			statement_balance = excluded.statement_balance,
			minimum_payment = excluded.minimum_payment,
			due_date = excluded.due_date,
			last_updated = excluded.last_updated
	`

	_, err := r.db.Exec(query,
		cycle.ID,
		cycle.AccountID,
		cycle.StartDate.Format(DateLayout),
		cycle.EndDate.Format(DateLayout),
		cycle.TotalSpend,
		cycle.TransactionCount,
		nullableFloat(cycle.StatementBalance),
		nullableFloat(cycle.MinimumPayment),
		nullableDate(cycle.DueDate),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert billing cycle for %s @ %s: %w",
			cycle.AccountID, cycle.StartDate.Format(DateLayout), err)
	}

	return nil
}

// UpsertAll writes a full recomputed cycle chain for one account inside a
// single transaction. The write is all-or-nothing so a concurrent reader
// never observes a half-updated chain.
func (r *Repository) UpsertAll(accountID string, cyclesToWrite []domain.BillingCycle) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cycle upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO billing_cycles (
			id, account_id, start_date, end_date,
			total_spend, transaction_count,
			statement_balance, minimum_payment, due_date, last_updated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, start_date) DO UPDATE SET
			end_date = excluded.end_date,
			total_spend = excluded.total_spend,
			transaction_count = excluded.transaction_count,
			statement_balance = excluded.statement_balance,
			minimum_payment = excluded.minimum_payment,
			due_date = excluded.due_date,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cycle upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range cyclesToWrite {
		c := &cyclesToWrite[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}

		if _, err := stmt.Exec(
			c.ID,
			accountID,
			c.StartDate.Format(DateLayout),
			c.EndDate.Format(DateLayout),
			c.TotalSpend,
			c.TransactionCount,
			nullableFloat(c.StatementBalance),
			nullableFloat(c.MinimumPayment),
			nullableDate(c.DueDate),
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert cycle %s @ %s: %w",
				accountID, c.StartDate.Format(DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle upserts for %s: %w", accountID, err)
	}

	r.log.Debug().
		Str("account_id", accountID).
		Int("cycles", len(cyclesToWrite)).
		Msg("Upserted billing cycle chain")

	return nil
}

// ListByAccount returns all stored cycles for an account, newest start first.
func (r *Repository) ListByAccount(accountID string) ([]domain.BillingCycle, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, start_date, end_date,
		       total_spend, transaction_count,
		       statement_balance, minimum_payment, due_date, last_updated
		FROM billing_cycles
		WHERE account_id = ?
		ORDER BY start_date DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing cycles for %s: %w", accountID, err)
	}
	defer rows.Close()

	var result []domain.BillingCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing cycles for %s: %w", accountID, err)
	}

	return result, nil
}

// DeleteByAccount removes all cycles for an account. Only account removal
// (an external collaborator's concern) deletes cycles; the engine itself
// never prunes history.
func (r *Repository) DeleteByAccount(accountID string) error {
	if _, err := r.db.Exec("DELETE FROM billing_cycles WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to delete billing cycles for %s: %w", accountID, err)
	}
	return nil
}

// scanCycle reads one billing-cycle row.
func scanCycle(rows *sql.Rows) (*domain.BillingCycle, error) {
	var (
		c                domain.BillingCycle
		startStr, endStr string
		stmtBal, minPay  sql.NullFloat64
		dueStr           sql.NullString
		lastUpdated      int64
	)

	if err := rows.Scan(
		&c.ID, &c.AccountID, &startStr, &endStr,
		&c.TotalSpend, &c.TransactionCount,
		&stmtBal, &minPay, &dueStr, &lastUpdated,
	); err != nil {
		return nil, fmt.Errorf("failed to scan billing cycle: %w", err)
	}

	var err error
	if c.StartDate, err = time.ParseInLocation(DateLayout, startStr, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid start_date %q: %w", startStr, err)
	}
	if c.EndDate, err = time.ParseInLocation(DateLayout, endStr, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid end_date %q: %w", endStr, err)
	}

	if stmtBal.Valid {
		v := stmtBal.Float64
		c.StatementBalance = &v
	}
	if minPay.Valid {
		v := minPay.Float64
		c.MinimumPayment = &v
	}
	if dueStr.Valid && dueStr.String != "" {
		due, err := time.ParseInLocation(DateLayout, dueStr.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid due_date %q: %w", dueStr.String, err)
		}
		c.DueDate = &due
	}

	c.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	return &c, nil
}

// nullableFloat converts an optional float for storage.
func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableDate converts an optional date for storage.
func nullableDate(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.Format(DateLayout)
}
