// Package domain provides core domain models and types.
package domain

import (
	"math"
	"time"
)

// PolicyKind identifies how an account's statement-close dates recur.
type PolicyKind string

const (
	// PolicyNone means no boundary policy is configured for the account
	PolicyNone PolicyKind = ""
	// PolicyFixedDay closes on a fixed day of month, clamped to days-in-month
	PolicyFixedDay PolicyKind = "fixed_day"
	// PolicyDaysBeforeMonthEnd closes N days before the last day of the month
	PolicyDaysBeforeMonthEnd PolicyKind = "days_before_month_end"
	// PolicyDynamicAnchor models issuers whose cycle length drifts by a day
	// across month-length transitions while anchoring to a target day
	PolicyDynamicAnchor PolicyKind = "dynamic_anchor"
	// PolicyExplicitDates uses a manually supplied list of close dates
	PolicyExplicitDates PolicyKind = "explicit"
)

// BoundaryPolicy describes how statement periods recur for one account.
type BoundaryPolicy struct {
	Kind PolicyKind `json:"kind"`
	// Day is the target close day of month (fixed_day, dynamic_anchor)
	Day int `json:"day,omitempty"`
	// Offset is the number of days before month end (days_before_month_end)
	Offset int `json:"offset,omitempty"`
	// ExplicitDates are manually supplied close dates, newest first (explicit)
	ExplicitDates []time.Time `json:"explicit_dates,omitempty"`
}

// Configured reports whether the policy carries enough information to
// generate boundaries on its own.
func (p BoundaryPolicy) Configured() bool {
	switch p.Kind {
	case PolicyFixedDay, PolicyDynamicAnchor:
		return p.Day >= 1 && p.Day <= 31
	case PolicyDaysBeforeMonthEnd:
		return p.Offset >= 0
	case PolicyExplicitDates:
		return len(p.ExplicitDates) > 0
	}
	return false
}

// Account represents one tracked credit card.
type Account struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Mask          string `json:"mask"`
	InstitutionID string `json:"institution_id"`

	// CurrentBalance is signed; its absolute value is the amount owed.
	CurrentBalance float64 `json:"current_balance"`

	// ProviderCreditLimit is the limit reported by the data provider.
	// ManualCreditLimit is a user override, consulted only when no valid
	// provider limit exists.
	ProviderCreditLimit *float64 `json:"provider_credit_limit,omitempty"`
	ManualCreditLimit   *float64 `json:"manual_credit_limit,omitempty"`

	LastStatementBalance   float64    `json:"last_statement_balance"`
	LastStatementIssueDate *time.Time `json:"last_statement_issue_date,omitempty"`
	NextPaymentDueDate     *time.Time `json:"next_payment_due_date,omitempty"`
	MinimumPaymentAmount   *float64   `json:"minimum_payment_amount,omitempty"`
	OpenedAt               *time.Time `json:"opened_at,omitempty"`

	Policy BoundaryPolicy `json:"policy"`

	LastUpdated time.Time `json:"last_updated"`
}

// CreditLimit returns the effective credit limit. A provider-reported limit
// that is a finite positive number is authoritative; the manual override is
// only consulted when no valid provider limit exists.
func (a *Account) CreditLimit() *float64 {
	if a.ProviderCreditLimit != nil {
		v := *a.ProviderCreditLimit
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return a.ProviderCreditLimit
		}
	}
	return a.ManualCreditLimit
}

// HasAnchorSignal reports whether the account carries any reliable signal
// for deriving statement boundaries: a reported statement close date or a
// manually configured boundary policy. Accounts without either are skipped
// rather than given fabricated history.
func (a *Account) HasAnchorSignal() bool {
	return a.LastStatementIssueDate != nil || a.Policy.Configured()
}

// Transaction is one posted or pending movement on an account.
// Amount is signed: positive = charge, negative = refund/credit.
type Transaction struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Amount       float64    `json:"amount"`
	PostedAt     time.Time  `json:"posted_at"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
	Pending      bool       `json:"pending"`
	Description  string     `json:"description"`
}

// ClassificationDate returns the date used to place the transaction inside a
// cycle window: the posted date, or the authorized date when the account's
// issuer policy designates authorized-date alignment (and one is present).
func (t *Transaction) ClassificationDate(useAuthorized bool) time.Time {
	if useAuthorized && t.AuthorizedAt != nil {
		return *t.AuthorizedAt
	}
	return t.PostedAt
}

// BillingCycle is one derived statement period for an account.
// EndDate is inclusive.
type BillingCycle struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"account_id"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	TotalSpend       float64    `json:"total_spend"`
	TransactionCount int        `json:"transaction_count"`
	StatementBalance *float64   `json:"statement_balance,omitempty"`
	MinimumPayment   *float64   `json:"minimum_payment,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	LastUpdated      time.Time  `json:"last_updated"`
}

// IsOpen reports whether the cycle is still accruing as of the given day.
func (c *BillingCycle) IsOpen(today time.Time) bool {
	return c.EndDate.After(today)
}

// CycleTotals is the result of aggregating spend inside one boundary window.
type CycleTotals struct {
	TotalSpend       float64 `json:"total_spend"`
	TransactionCount int     `json:"transaction_count"`
}

// PeriodConfidence grades an external statement-period confirmation.
type PeriodConfidence string

const (
	ConfidenceHigh   PeriodConfidence = "high"
	ConfidenceMedium PeriodConfidence = "medium"
	ConfidenceLow    PeriodConfidence = "low"
)

// StatementPeriod is one externally confirmed statement period.
// StartDate may be nil; such periods are only usable when an older period
// supplies the missing boundary.
type StatementPeriod struct {
	EndDate    time.Time        `json:"end_date" msgpack:"end_date"`
	StartDate  *time.Time       `json:"start_date,omitempty" msgpack:"start_date"`
	Confidence PeriodConfidence `json:"confidence" msgpack:"confidence"`
}

// InstitutionStatus reports whether the provider considers an institution's
// data feed healthy.
type InstitutionStatus struct {
	InstitutionID string    `json:"institution_id" msgpack:"institution_id"`
	Healthy       bool      `json:"healthy" msgpack:"healthy"`
	LastUpdate    time.Time `json:"last_update" msgpack:"last_update"`
}
