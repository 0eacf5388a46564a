package cycles

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

// DefaultDisplayCycles is how many closed cycles most issuers show.
const DefaultDisplayCycles = 12

// ComputeOptions carries the per-issuer knobs applied to one account's
// computation.
type ComputeOptions struct {
	// UseAuthorizedDate aligns transactions on their authorized date
	// instead of the posted date.
	UseAuthorizedDate bool
	// DisplayCycles caps the number of closed cycles emitted. Zero means
	// DefaultDisplayCycles.
	DisplayCycles int
	// Classifier overrides the payment classifier, typically to add
	// issuer-specific vocabulary. Nil uses the service default.
	Classifier PaymentClassifier
}

// Service derives the full billing-cycle chain for one account: boundary
// generation (overridden by external confirmations when available), per-window
// aggregation, reconciliation, and open-date filtering. It computes into a
// local slice; persistence is a separate single write pass.
type Service struct {
	generator  *BoundaryGenerator
	reconciler *Reconciler
	classifier PaymentClassifier            // default when options carry none
	periods    domain.StatementPeriodSource // optional; nil disables confirmations
	clock      domain.Clock
	log        zerolog.Logger
}

// NewService creates a cycle computation service. periods may be nil.
func NewService(
	generator *BoundaryGenerator,
	reconciler *Reconciler,
	classifier PaymentClassifier,
	periods domain.StatementPeriodSource,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		generator:  generator,
		reconciler: reconciler,
		classifier: classifier,
		periods:    periods,
		clock:      clock,
		log:        log.With().Str("service", "cycles").Logger(),
	}
}

// ComputeAccount derives the billing cycles for one account from its
// snapshot and transaction list. The transaction list may arrive in any
// order.
//
// Accounts with no anchor signal and no transactions return
// domain.ErrMissingAnchor (a skip, not a failure). Accounts with no anchor
// signal but recent transactions get a single best-effort trailing window
// rather than fabricated statement history.
func (s *Service) ComputeAccount(ctx context.Context, account *domain.Account, txns []domain.Transaction, opts ComputeOptions) ([]domain.BillingCycle, error) {
	today := Day(s.clock.Now())

	if !account.HasAnchorSignal() {
		if len(txns) == 0 {
			return nil, domain.ErrMissingAnchor
		}
		s.log.Debug().
			Str("account_id", account.ID).
			Msg("No anchor signal, deriving best-effort window")
		set := s.generator.BestEffortWindow(today)
		return s.buildCycles(account, txns, set, opts, today)
	}

	set, err := s.boundaries(ctx, account, today)
	if err != nil {
		return nil, err
	}

	return s.buildCycles(account, txns, set, opts, today)
}

// boundaries resolves the boundary chain for an account: externally confirmed
// statement periods when available and usable, the heuristic generator
// otherwise. Confirmation failures are transient and never abort the account.
func (s *Service) boundaries(ctx context.Context, account *domain.Account, today time.Time) (BoundarySet, error) {
	if s.periods != nil {
		periods, err := s.periods.GetStatementPeriods(ctx, account.ID)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("account_id", account.ID).
				Msg("Statement period fetch failed, falling back to heuristic boundaries")
		} else if ends := usableConfirmedEnds(periods); len(ends) >= 2 {
			anchor := ends[len(ends)-1]
			set := BoundarySet{Ends: ends, OpenEnd: s.nextClose(anchor, account.Policy)}
			return s.rollForward(set, account.Policy, today), nil
		}
	}

	anchor := s.anchorDate(account, today)

	set, err := s.generator.Generate(anchor, account.Policy)
	if err != nil {
		return BoundarySet{}, err
	}

	return s.rollForward(set, account.Policy, today), nil
}

// rollForward extends a boundary chain whose anchor has gone stale (the
// provider stopped updating) until the projected open end lands in the
// future, preserving the exactly-one-open-cycle invariant.
func (s *Service) rollForward(set BoundarySet, policy domain.BoundaryPolicy, today time.Time) BoundarySet {
	for !set.OpenEnd.After(today) {
		set.Ends = append(set.Ends, set.OpenEnd)
		set.OpenEnd = s.nextClose(set.OpenEnd, policy)
	}
	return set
}

// anchorDate picks the anchor close date: the provider-reported statement
// close when present, otherwise the most recent policy-implied close before
// today.
func (s *Service) anchorDate(account *domain.Account, today time.Time) time.Time {
	if account.LastStatementIssueDate != nil {
		return Day(*account.LastStatementIssueDate)
	}

	p := account.Policy
	switch p.Kind {
	case domain.PolicyExplicitDates:
		// The generator reads explicit dates directly; any anchor works.
		return today

	case domain.PolicyDaysBeforeMonthEnd:
		for i := 0; i < 2; i++ {
			y, m := AddMonths(today.Year(), today.Month(), -i)
			d := Date(y, m, ClampDay(DaysInMonth(y, m)-p.Offset, y, m))
			if !d.After(today) {
				return d
			}
		}

	default:
		// fixed_day and dynamic_anchor both anchor to a target day
		for i := 0; i < 2; i++ {
			y, m := AddMonths(today.Year(), today.Month(), -i)
			d := Date(y, m, ClampDay(p.Day, y, m))
			if !d.After(today) {
				return d
			}
		}
	}

	return today
}

// nextClose projects the close date following the given anchor under the
// account's policy. Explicit-date policies have nothing to project from, so
// they advance one month holding the anchor's day.
func (s *Service) nextClose(anchor time.Time, policy domain.BoundaryPolicy) time.Time {
	if policy.Kind == domain.PolicyExplicitDates {
		ny, nm := AddMonths(anchor.Year(), anchor.Month(), 1)
		return Date(ny, nm, ClampDay(anchor.Day(), ny, nm))
	}

	set, err := s.generator.Generate(anchor, policy)
	if err != nil {
		ny, nm := AddMonths(anchor.Year(), anchor.Month(), 1)
		return Date(ny, nm, ClampDay(anchor.Day(), ny, nm))
	}
	return set.OpenEnd
}

// buildCycles assembles, aggregates, reconciles, filters, and orders the
// cycle chain for one account.
func (s *Service) buildCycles(account *domain.Account, txns []domain.Transaction, set BoundarySet, opts ComputeOptions, today time.Time) ([]domain.BillingCycle, error) {
	// The engine sorts internally; callers may pass any order.
	sorted := make([]domain.Transaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PostedAt.Before(sorted[j].PostedAt)
	})

	classifier := opts.Classifier
	if classifier == nil {
		classifier = s.classifier
	}
	agg := NewAggregator(classifier)

	displayCap := opts.DisplayCycles
	if displayCap <= 0 {
		displayCap = DefaultDisplayCycles
	}

	var result []domain.BillingCycle

	// Closed cycles: windows between consecutive boundaries. The oldest
	// boundary is a start marker only.
	for i := 1; i < len(set.Ends); i++ {
		start := set.Ends[i-1].AddDate(0, 0, 1)
		end := set.Ends[i]

		cycle := s.buildOneCycle(agg, account, sorted, start, end, false, opts, today)
		if cycle == nil {
			continue
		}

		if account.LastStatementIssueDate != nil && SameDay(end, *account.LastStatementIssueDate) {
			payments := agg.PaymentsAfter(sorted, end)
			s.reconciler.ReconcileAnchor(cycle, account, payments)
		} else {
			s.reconciler.ReconcileClosed(cycle)
			if cycle.DueDate == nil {
				cycle.DueDate = s.generator.EstimateDueDate(end, account.Policy, account.NextPaymentDueDate)
			}
		}

		result = append(result, *cycle)
	}

	// Open cycle: from the day after the newest close to the projected end.
	openStart := set.Ends[len(set.Ends)-1].AddDate(0, 0, 1)
	if open := s.buildOneCycle(agg, account, sorted, openStart, set.OpenEnd, true, opts, today); open != nil {
		s.reconciler.ReconcileOpen(open)
		result = append(result, *open)
	}

	// Keep the newest closed cycles within the issuer's display window; the
	// open cycle always survives.
	result = capClosedCycles(result, displayCap, today)

	// Newest start first for the presentation layer
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartDate.After(result[j].StartDate)
	})

	return result, nil
}

// buildOneCycle aggregates one boundary window into a cycle record, or nil
// when the window predates the account's open date.
func (s *Service) buildOneCycle(agg *Aggregator, account *domain.Account, sorted []domain.Transaction, start, end time.Time, isOpen bool, opts ComputeOptions, today time.Time) *domain.BillingCycle {
	// No cycle is emitted whose end date precedes the account's open date
	if account.OpenedAt != nil && Day(end).Before(Day(*account.OpenedAt)) {
		return nil
	}

	totals := agg.Aggregate(sorted, start, end, isOpen, opts.UseAuthorizedDate, today)

	return &domain.BillingCycle{
		AccountID:        account.ID,
		StartDate:        Day(start),
		EndDate:          Day(end),
		TotalSpend:       totals.TotalSpend,
		TransactionCount: totals.TransactionCount,
		LastUpdated:      s.clock.Now().UTC(),
	}
}

// capClosedCycles trims the chain to the newest n closed cycles, keeping the
// open cycle unconditionally.
func capClosedCycles(all []domain.BillingCycle, n int, today time.Time) []domain.BillingCycle {
	var closed, open []domain.BillingCycle
	for i := range all {
		if all[i].IsOpen(today) {
			open = append(open, all[i])
		} else {
			closed = append(closed, all[i])
		}
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].EndDate.After(closed[j].EndDate)
	})
	if len(closed) > n {
		closed = closed[:n]
	}

	return append(closed, open...)
}

// usableConfirmedEnds converts external statement-period confirmations into
// a boundary chain, oldest first. A period lacking a start date is only
// usable when an older period supplies it; low-confidence periods are
// ignored. The oldest usable period's start date becomes the leading start
// marker.
func usableConfirmedEnds(periods []domain.StatementPeriod) []time.Time {
	var usable []domain.StatementPeriod
	for _, p := range periods {
		if p.Confidence == domain.ConfidenceLow {
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		return nil
	}

	// Oldest first
	sort.Slice(usable, func(i, j int) bool {
		return usable[i].EndDate.Before(usable[j].EndDate)
	})

	var ends []time.Time
	for i, p := range usable {
		if i == 0 {
			// The oldest period either supplies its own start date, or its
			// confirmed end only serves as the start marker for the next
			// period (the period itself cannot be emitted without a start).
			if p.StartDate != nil {
				ends = append(ends, Day(p.StartDate.AddDate(0, 0, -1)))
			}
		}
		ends = append(ends, Day(p.EndDate))
	}

	// Cap to the trailing window plus the start marker
	if max := historicalCloses + 2; len(ends) > max {
		ends = ends[len(ends)-max:]
	}

	return ends
}
