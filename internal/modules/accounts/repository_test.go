package accounts

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvasko/cardsentry/internal/domain"
)

const testSchema = `
CREATE TABLE accounts (
    id                        TEXT PRIMARY KEY,
    name                      TEXT NOT NULL,
    mask                      TEXT NOT NULL DEFAULT '',
    institution_id            TEXT NOT NULL DEFAULT '',
    current_balance           REAL NOT NULL DEFAULT 0,
    provider_credit_limit     REAL,
    manual_credit_limit       REAL,
    last_statement_balance    REAL NOT NULL DEFAULT 0,
    last_statement_issue_date TEXT,
    next_payment_due_date     TEXT,
    minimum_payment_amount    REAL,
    opened_at                 TEXT,
    policy_kind               TEXT NOT NULL DEFAULT '',
    policy_day                INTEGER NOT NULL DEFAULT 0,
    policy_offset             INTEGER NOT NULL DEFAULT 0,
    policy_explicit_dates     TEXT NOT NULL DEFAULT '',
    last_updated              INTEGER NOT NULL DEFAULT 0
);
`

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func sampleAccount() *domain.Account {
	issue := date(2024, time.March, 15)
	due := date(2024, time.April, 11)
	limit := 5000.00
	min := 40.00
	return &domain.Account{
		ID:                     "acc_1",
		Name:                   "Everyday Card",
		Mask:                   "1234",
		InstitutionID:          "ins_citi",
		CurrentBalance:         -321.50,
		ProviderCreditLimit:    &limit,
		LastStatementBalance:   500.00,
		LastStatementIssueDate: &issue,
		NextPaymentDueDate:     &due,
		MinimumPaymentAmount:   &min,
	}
}

func TestAccountUpsertAndGet(t *testing.T) {
	repo := setupTestRepo(t)

	account := sampleAccount()
	require.NoError(t, repo.Upsert(account))

	got, err := repo.Get("acc_1")
	require.NoError(t, err)

	assert.Equal(t, "Everyday Card", got.Name)
	assert.Equal(t, "1234", got.Mask)
	assert.Equal(t, "ins_citi", got.InstitutionID)
	assert.Equal(t, -321.50, got.CurrentBalance)
	require.NotNil(t, got.ProviderCreditLimit)
	assert.Equal(t, 5000.00, *got.ProviderCreditLimit)
	require.NotNil(t, got.LastStatementIssueDate)
	assert.Equal(t, date(2024, time.March, 15), *got.LastStatementIssueDate)
	require.NotNil(t, got.NextPaymentDueDate)
	assert.Equal(t, date(2024, time.April, 11), *got.NextPaymentDueDate)
	require.NotNil(t, got.MinimumPaymentAmount)
	assert.Equal(t, 40.00, *got.MinimumPaymentAmount)
}

func TestAccountGetMissing(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAccountUpsertPreservesUserOwnedFields(t *testing.T) {
	repo := setupTestRepo(t)

	account := sampleAccount()
	require.NoError(t, repo.Upsert(account))

	limit := 8000.00
	require.NoError(t, repo.SetManualCreditLimit("acc_1", &limit))
	require.NoError(t, repo.SetPolicy("acc_1", domain.BoundaryPolicy{
		Kind: domain.PolicyDynamicAnchor,
		Day:  15,
	}))

	// A fresh provider snapshot must not clobber the manual limit or policy
	refreshed := sampleAccount()
	refreshed.CurrentBalance = -150.00
	require.NoError(t, repo.Upsert(refreshed))

	got, err := repo.Get("acc_1")
	require.NoError(t, err)

	assert.Equal(t, -150.00, got.CurrentBalance)
	require.NotNil(t, got.ManualCreditLimit)
	assert.Equal(t, 8000.00, *got.ManualCreditLimit)
	assert.Equal(t, domain.PolicyDynamicAnchor, got.Policy.Kind)
	assert.Equal(t, 15, got.Policy.Day)
}

func TestAccountSetManualCreditLimitClear(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Upsert(sampleAccount()))

	limit := 8000.00
	require.NoError(t, repo.SetManualCreditLimit("acc_1", &limit))
	require.NoError(t, repo.SetManualCreditLimit("acc_1", nil))

	got, err := repo.Get("acc_1")
	require.NoError(t, err)
	assert.Nil(t, got.ManualCreditLimit)
}

func TestAccountSetPolicyExplicitDatesRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Upsert(sampleAccount()))

	policy := domain.BoundaryPolicy{
		Kind: domain.PolicyExplicitDates,
		ExplicitDates: []time.Time{
			date(2024, time.January, 12),
			date(2024, time.February, 13),
		},
	}
	require.NoError(t, repo.SetPolicy("acc_1", policy))

	got, err := repo.Get("acc_1")
	require.NoError(t, err)
	require.Len(t, got.Policy.ExplicitDates, 2)
	assert.Equal(t, date(2024, time.January, 12), got.Policy.ExplicitDates[0])
	assert.Equal(t, date(2024, time.February, 13), got.Policy.ExplicitDates[1])
}

func TestAccountSettersRequireExistingRow(t *testing.T) {
	repo := setupTestRepo(t)

	limit := 100.00
	assert.Error(t, repo.SetManualCreditLimit("missing", &limit))
	assert.Error(t, repo.SetPolicy("missing", domain.BoundaryPolicy{Kind: domain.PolicyFixedDay, Day: 5}))
	assert.Error(t, repo.Delete("missing"))
}

func TestAccountListOrderedByName(t *testing.T) {
	repo := setupTestRepo(t)

	a := sampleAccount()
	a.ID = "acc_z"
	a.Name = "Zebra Card"
	require.NoError(t, repo.Upsert(a))

	b := sampleAccount()
	b.ID = "acc_a"
	b.Name = "Alpha Card"
	require.NoError(t, repo.Upsert(b))

	accounts, err := repo.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Alpha Card", accounts[0].Name)
	assert.Equal(t, "Zebra Card", accounts[1].Name)
}

func TestAccountDelete(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Upsert(sampleAccount()))
	require.NoError(t, repo.Delete("acc_1"))

	_, err := repo.Get("acc_1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
