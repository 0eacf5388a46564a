package cycles

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvasko/cardsentry/internal/domain"
)

func testReconciler() *Reconciler {
	return NewReconciler(zerolog.Nop())
}

func TestReconcileAnchorUnsettled(t *testing.T) {
	r := testReconciler()

	due := d(2024, time.April, 11)
	min := 40.00
	account := &domain.Account{
		ID:                   "acc_1",
		LastStatementBalance: 500.00,
		NextPaymentDueDate:   &due,
		MinimumPaymentAmount: &min,
	}
	cycle := &domain.BillingCycle{
		AccountID:  "acc_1",
		StartDate:  d(2024, time.February, 16),
		EndDate:    d(2024, time.March, 15),
		TotalSpend: 480.00,
	}

	r.ReconcileAnchor(cycle, account, nil)

	require.NotNil(t, cycle.StatementBalance)
	assert.Equal(t, 500.00, *cycle.StatementBalance)
	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 40.00, *cycle.MinimumPayment)
	require.NotNil(t, cycle.DueDate)
	assert.Equal(t, due, *cycle.DueDate)
}

func TestReconcileAnchorSettledByMatchingPayment(t *testing.T) {
	r := testReconciler()

	due := d(2024, time.April, 11)
	account := &domain.Account{
		ID:                   "acc_1",
		LastStatementBalance: 500.00,
		NextPaymentDueDate:   &due,
	}
	cycle := &domain.BillingCycle{
		AccountID:  "acc_1",
		EndDate:    d(2024, time.March, 15),
		TotalSpend: 480.00,
	}

	// Payment within the $5 tolerance of the reported balance
	payments := []domain.Transaction{
		{ID: "p1", Amount: -498.00, PostedAt: d(2024, time.March, 18), Description: "PAYMENT THANK YOU"},
	}

	r.ReconcileAnchor(cycle, account, payments)

	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 0.00, *cycle.MinimumPayment)
	require.NotNil(t, cycle.StatementBalance)
	assert.Equal(t, 480.00, *cycle.StatementBalance, "settled anchor shows computed spend, not the stale reported balance")
	require.NotNil(t, cycle.DueDate)
	assert.Equal(t, due, *cycle.DueDate)
}

func TestReconcileAnchorAnyPaymentSettles(t *testing.T) {
	r := testReconciler()

	account := &domain.Account{
		ID:                   "acc_1",
		LastStatementBalance: 500.00,
	}
	cycle := &domain.BillingCycle{
		AccountID:  "acc_1",
		EndDate:    d(2024, time.March, 15),
		TotalSpend: 480.00,
	}

	// Partial payment, nowhere near the reported balance
	payments := []domain.Transaction{
		{ID: "p1", Amount: -100.00, PostedAt: d(2024, time.March, 20), Description: "PAYMENT"},
	}

	r.ReconcileAnchor(cycle, account, payments)

	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 0.00, *cycle.MinimumPayment)
	require.NotNil(t, cycle.StatementBalance)
	assert.Equal(t, 480.00, *cycle.StatementBalance)
}

func TestReconcileAnchorCustomTolerance(t *testing.T) {
	r := testReconciler()
	r.SetTolerance(50.0)

	account := &domain.Account{ID: "acc_1", LastStatementBalance: 500.00}
	cycle := &domain.BillingCycle{AccountID: "acc_1", EndDate: d(2024, time.March, 15), TotalSpend: 300.00}

	payments := []domain.Transaction{
		{ID: "p1", Amount: -460.00, PostedAt: d(2024, time.March, 18), Description: "PAYMENT"},
	}

	r.ReconcileAnchor(cycle, account, payments)

	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 0.00, *cycle.MinimumPayment)
}

func TestReconcileClosedEstimatesMinimumPayment(t *testing.T) {
	r := testReconciler()

	cycle := &domain.BillingCycle{TotalSpend: 1000.00}
	r.ReconcileClosed(cycle)

	require.NotNil(t, cycle.StatementBalance)
	assert.Equal(t, 1000.00, *cycle.StatementBalance)
	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 25.00, *cycle.MinimumPayment) // floor wins over 2%

	cycle = &domain.BillingCycle{TotalSpend: 2000.00}
	r.ReconcileClosed(cycle)

	require.NotNil(t, cycle.MinimumPayment)
	assert.Equal(t, 40.00, *cycle.MinimumPayment) // 2% wins over the floor
}

func TestReconcileClosedNoSpendNoMinimum(t *testing.T) {
	r := testReconciler()

	cycle := &domain.BillingCycle{TotalSpend: 0}
	r.ReconcileClosed(cycle)

	require.NotNil(t, cycle.StatementBalance)
	assert.Equal(t, 0.00, *cycle.StatementBalance)
	assert.Nil(t, cycle.MinimumPayment)

	// Refund-heavy cycle with negative net spend
	cycle = &domain.BillingCycle{TotalSpend: -35.00}
	r.ReconcileClosed(cycle)
	assert.Nil(t, cycle.MinimumPayment)
}

func TestReconcileOpenStripsStatementFigures(t *testing.T) {
	r := testReconciler()

	balance := 120.00
	min := 25.00
	cycle := &domain.BillingCycle{
		TotalSpend:       120.00,
		StatementBalance: &balance,
		MinimumPayment:   &min,
	}

	r.ReconcileOpen(cycle)

	assert.Nil(t, cycle.StatementBalance)
	assert.Nil(t, cycle.MinimumPayment)
}
