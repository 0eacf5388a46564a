package cycles

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

const (
	// defaultPaymentMatchTolerance is how close (in dollars) a post-close
	// payment must be to the reported statement balance to count as a match.
	// Reverse-engineered from observed provider behavior for specific
	// issuers; tunable via settings, not a domain invariant.
	defaultPaymentMatchTolerance = 5.0

	// Minimum-payment estimate for non-anchor closed cycles:
	// max(minimumPaymentFloor, minimumPaymentRate * totalSpend).
	minimumPaymentFloor = 25.0
	minimumPaymentRate  = 0.02
)

// Reconciler decides what statement-level figures a cycle should carry,
// merging provider-reported balance and due date with computed totals and
// detecting statements the provider has not yet marked paid.
type Reconciler struct {
	tolerance float64
	log       zerolog.Logger
}

// NewReconciler creates a reconciler with the default payment-match tolerance.
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		tolerance: defaultPaymentMatchTolerance,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// SetTolerance overrides the payment-match tolerance. Non-positive values
// are ignored.
func (r *Reconciler) SetTolerance(tolerance float64) {
	if tolerance > 0 {
		r.tolerance = tolerance
	}
}

// ReconcileAnchor fills the anchor cycle (the cycle whose end date matches
// the account's last reported statement close) with the provider's reported
// statement balance and minimum payment, unless payments posted after the
// close show the statement was already settled.
//
// The provider typically does not clear the reported figure immediately
// after a payment posts, so a post-close payment within tolerance of the
// reported balance forces minimumPayment to 0 and displays the cycle's own
// computed spend instead of the stale reported balance.
func (r *Reconciler) ReconcileAnchor(cycle *domain.BillingCycle, account *domain.Account, paymentsAfterClose []domain.Transaction) {
	reported := account.LastStatementBalance

	// The provider's reported due date belongs to the anchor statement
	// whether or not it turns out to be settled.
	if account.NextPaymentDueDate != nil {
		due := Day(*account.NextPaymentDueDate)
		cycle.DueDate = &due
	}

	var paidTotal float64
	matched := false
	for i := range paymentsAfterClose {
		amt := math.Abs(paymentsAfterClose[i].Amount)
		paidTotal += amt
		if math.Abs(amt-math.Abs(reported)) <= r.tolerance {
			matched = true
		}
	}

	if paidTotal > 0 {
		// Settled: zero the minimum and prefer computed spend over the
		// stale reported figure.
		zero := 0.0
		cycle.MinimumPayment = &zero
		spend := cycle.TotalSpend
		cycle.StatementBalance = &spend

		r.log.Debug().
			Str("account_id", account.ID).
			Str("cycle_end", cycle.EndDate.Format(DateLayout)).
			Float64("reported_balance", reported).
			Float64("paid_total", paidTotal).
			Bool("tolerance_match", matched).
			Msg("Statement detected as settled, using computed spend")
		return
	}

	balance := reported
	cycle.StatementBalance = &balance
	if account.MinimumPaymentAmount != nil {
		min := *account.MinimumPaymentAmount
		cycle.MinimumPayment = &min
	}
}

// ReconcileClosed fills a closed, non-anchor cycle: computed spend stands in
// for the statement balance (0 when no spend), and the minimum payment is
// estimated as max($25, 2% of spend) when spend is positive.
func (r *Reconciler) ReconcileClosed(cycle *domain.BillingCycle) {
	spend := cycle.TotalSpend
	cycle.StatementBalance = &spend

	if spend > 0 {
		min := math.Max(minimumPaymentFloor, minimumPaymentRate*spend)
		cycle.MinimumPayment = &min
	}
}

// ReconcileOpen strips statement-level figures from the open cycle: a period
// still accruing has no statement balance and no minimum payment.
func (r *Reconciler) ReconcileOpen(cycle *domain.BillingCycle) {
	cycle.StatementBalance = nil
	cycle.MinimumPayment = nil
}
