// Package accounts handles persistence for tracked credit card accounts.
package accounts

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository handles account persistence in cards.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// List returns all tracked accounts ordered by name.
//
// Returns:
//   - []domain.Account: all tracked accounts
//   - error: database errors
func (r *Repository) List() ([]domain.Account, error) {
	rows, err := r.db.Query(selectColumns + ` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

// Get returns one account by id, or sql.ErrNoRows when absent.
//
// Parameters:
//   - id: the account identifier
//
// Returns:
//   - *domain.Account: the account when found
//   - error: sql.ErrNoRows when the account does not exist, database errors otherwise
func (r *Repository) Get(id string) (*domain.Account, error) {
	rows, err := r.db.Query(selectColumns+` FROM accounts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}

	return scanAccount(rows)
}

// Upsert inserts or updates an account snapshot. Provider-sourced fields are
// overwritten wholesale; the manual credit limit and boundary policy are
// user-owned and only change through their dedicated setters.
func (r *Repository) Upsert(account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (
			id, name, mask, institution_id, current_balance,
			provider_credit_limit, manual_credit_limit,
			last_statement_balance, last_statement_issue_date,
			next_payment_due_date, minimum_payment_amount, opened_at,
			policy_kind, policy_day, policy_offset, policy_explicit_dates,
			last_updated
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mask = excluded.mask,
			institution_id = excluded.institution_id,
			current_balance = excluded.current_balance,
			provider_credit_limit = excluded.provider_credit_limit,
			last_statement_balance = excluded.last_statement_balance,
			last_statement_issue_date = excluded.last_statement_issue_date,
			next_payment_due_date = excluded.next_payment_due_date,
			minimum_payment_amount = excluded.minimum_payment_amount,
			opened_at = excluded.opened_at,
			last_updated = excluded.last_updated
	`

	_, err := r.db.Exec(query,
		account.ID,
		account.Name,
		account.Mask,
		account.InstitutionID,
		account.CurrentBalance,
		nullableFloat(account.ProviderCreditLimit),
		nullableFloat(account.ManualCreditLimit),
		account.LastStatementBalance,
		nullableDate(account.LastStatementIssueDate),
		nullableDate(account.NextPaymentDueDate),
		nullableFloat(account.MinimumPaymentAmount),
		nullableDate(account.OpenedAt),
		string(account.Policy.Kind),
		account.Policy.Day,
		account.Policy.Offset,
		encodeExplicitDates(account.Policy.ExplicitDates),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.ID, err)
	}

	return nil
}

// SetManualCreditLimit stores or clears the user-supplied credit limit
// override. Pass nil to clear.
func (r *Repository) SetManualCreditLimit(id string, limit *float64) error {
	result, err := r.db.Exec(
		`UPDATE accounts SET manual_credit_limit = ?, last_updated = ? WHERE id = ?`,
		nullableFloat(limit), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set manual credit limit for %s: %w", id, err)
	}
	return requireRow(result, id)
}

// SetPolicy stores the account's boundary policy.
//
// Parameters:
//   - id: the account identifier
//   - policy: the boundary policy; domain.PolicyNone clears it
func (r *Repository) SetPolicy(id string, policy domain.BoundaryPolicy) error {
	result, err := r.db.Exec(
		`UPDATE accounts SET
			policy_kind = ?, policy_day = ?, policy_offset = ?,
			policy_explicit_dates = ?, last_updated = ?
		WHERE id = ?`,
		string(policy.Kind),
		policy.Day,
		policy.Offset,
		encodeExplicitDates(policy.ExplicitDates),
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set policy for %s: %w", id, err)
	}
	return requireRow(result, id)
}

// Delete removes an account. Transactions and billing cycles cascade.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	return requireRow(result, id)
}

const selectColumns = `
	SELECT id, name, mask, institution_id, current_balance,
	       provider_credit_limit, manual_credit_limit,
	       last_statement_balance, last_statement_issue_date,
	       next_payment_due_date, minimum_payment_amount, opened_at,
	       policy_kind, policy_day, policy_offset, policy_explicit_dates,
	       last_updated`

func scanAccount(rows *sql.Rows) (*domain.Account, error) {
	var (
		a                       domain.Account
		providerLimit           sql.NullFloat64
		manualLimit             sql.NullFloat64
		lastStatementIssueDate  sql.NullString
		nextPaymentDueDate      sql.NullString
		minimumPayment          sql.NullFloat64
		openedAt                sql.NullString
		policyKind              string
		policyDay, policyOffset int
		explicitDates           string
		lastUpdated             int64
	)

	err := rows.Scan(
		&a.ID, &a.Name, &a.Mask, &a.InstitutionID, &a.CurrentBalance,
		&providerLimit, &manualLimit,
		&a.LastStatementBalance, &lastStatementIssueDate,
		&nextPaymentDueDate, &minimumPayment, &openedAt,
		&policyKind, &policyDay, &policyOffset, &explicitDates,
		&lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if providerLimit.Valid {
		a.ProviderCreditLimit = &providerLimit.Float64
	}
	if manualLimit.Valid {
		a.ManualCreditLimit = &manualLimit.Float64
	}
	if minimumPayment.Valid {
		a.MinimumPaymentAmount = &minimumPayment.Float64
	}
	if a.LastStatementIssueDate, err = parseNullableDate(lastStatementIssueDate); err != nil {
		return nil, err
	}
	if a.NextPaymentDueDate, err = parseNullableDate(nextPaymentDueDate); err != nil {
		return nil, err
	}
	if a.OpenedAt, err = parseNullableDate(openedAt); err != nil {
		return nil, err
	}

	a.Policy = domain.BoundaryPolicy{
		Kind:   domain.PolicyKind(policyKind),
		Day:    policyDay,
		Offset: policyOffset,
	}
	if a.Policy.ExplicitDates, err = decodeExplicitDates(explicitDates); err != nil {
		return nil, err
	}

	a.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	return &a, nil
}

// encodeExplicitDates joins close dates into a comma-separated column value.
func encodeExplicitDates(dates []time.Time) string {
	if len(dates) == 0 {
		return ""
	}
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format(dateLayout)
	}
	return strings.Join(parts, ",")
}

func decodeExplicitDates(encoded string) ([]time.Time, error) {
	if encoded == "" {
		return nil, nil
	}
	parts := strings.Split(encoded, ",")
	dates := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		d, err := time.Parse(dateLayout, p)
		if err != nil {
			return nil, fmt.Errorf("failed to parse explicit close date %q: %w", p, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func parseNullableDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", v.String, err)
	}
	return &d, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s not found", id)
	}
	return nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDate(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.Format(dateLayout)
}
