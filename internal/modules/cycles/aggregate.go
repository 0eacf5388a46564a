package cycles

import (
	"time"

	"github.com/nvasko/cardsentry/internal/domain"
)

// PaymentClassifier is the contract the aggregator needs from the transaction
// classifier.
type PaymentClassifier interface {
	IsPayment(description string) bool
}

// Aggregator sums non-payment spend inside boundary windows.
type Aggregator struct {
	classifier PaymentClassifier
}

// NewAggregator creates a spend aggregator.
func NewAggregator(classifier PaymentClassifier) *Aggregator {
	return &Aggregator{classifier: classifier}
}

// Aggregate sums non-payment transactions whose classification date falls in
// [windowStart, effectiveEnd], where effectiveEnd = min(windowEnd, today) for
// the open cycle so future-dated rows never count.
//
// Pending transactions are excluded unconditionally. Payment-classified
// transactions are excluded; everything else is summed with sign preserved,
// so refunds can pull TotalSpend below the raw absolute sum.
// TransactionCount reports only non-payment transactions.
func (a *Aggregator) Aggregate(
	txns []domain.Transaction,
	windowStart, windowEnd time.Time,
	isOpenCycle bool,
	useAuthorizedDate bool,
	today time.Time,
) domain.CycleTotals {
	windowStart = Day(windowStart)

	effectiveEnd := Day(windowEnd)
	if isOpenCycle {
		effectiveEnd = minDay(effectiveEnd, Day(today))
	}

	var totals domain.CycleTotals
	for i := range txns {
		t := &txns[i]

		if t.Pending {
			continue
		}

		d := Day(t.ClassificationDate(useAuthorizedDate))
		if d.Before(windowStart) || d.After(effectiveEnd) {
			continue
		}

		if a.classifier.IsPayment(t.Description) {
			continue
		}

		totals.TotalSpend += t.Amount
		totals.TransactionCount++
	}

	return totals
}

// PaymentsAfter returns the payment-classified, non-pending transactions
// posted strictly after the given close date. Used by reconciliation to
// detect statements that were already paid down.
func (a *Aggregator) PaymentsAfter(txns []domain.Transaction, close time.Time) []domain.Transaction {
	close = Day(close)

	var payments []domain.Transaction
	for i := range txns {
		t := &txns[i]
		if t.Pending {
			continue
		}
		if !Day(t.PostedAt).After(close) {
			continue
		}
		if a.classifier.IsPayment(t.Description) {
			payments = append(payments, *t)
		}
	}
	return payments
}
