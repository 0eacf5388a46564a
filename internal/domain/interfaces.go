package domain

import (
	"context"
	"errors"
	"time"
)

// ErrMissingAnchor marks an account that has neither a reported statement
// date nor a manually configured boundary policy. It is a skip decision,
// not a failure: callers log it and move on to the next account.
var ErrMissingAnchor = errors.New("no statement anchor or boundary policy")

// StatementPeriodSource supplies externally confirmed statement periods for
// an account. Implementations are expected to cache; callers treat any error
// as transient and fall back to heuristic boundaries.
type StatementPeriodSource interface {
	GetStatementPeriods(ctx context.Context, accountID string) ([]StatementPeriod, error)
}

// InstitutionStatusSource reports provider feed health for an institution.
// Health is advisory: callers may annotate or warn but never block on it.
type InstitutionStatusSource interface {
	GetInstitutionStatus(ctx context.Context, institutionID string) (*InstitutionStatus, error)
}

// AccountSource lists tracked accounts. Implemented by the accounts
// repository; tests supply fakes.
type AccountSource interface {
	List() ([]Account, error)
	Get(id string) (*Account, error)
}

// TransactionSource lists imported transactions for one account, any order.
type TransactionSource interface {
	ListByAccount(accountID string) ([]Transaction, error)
}

// CycleStore persists derived billing cycles.
type CycleStore interface {
	UpsertAll(accountID string, cycles []BillingCycle) error
	ListByAccount(accountID string) ([]BillingCycle, error)
}

// Clock abstracts "today" so cycle math is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
