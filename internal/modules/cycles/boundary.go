// Package cycles implements the billing-cycle derivation engine: statement
// boundary generation, spend aggregation inside boundary windows, statement
// reconciliation against provider-reported figures, and idempotent
// persistence of the derived cycles.
package cycles

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
)

const (
	// historicalCloses is how many closed statement periods are derived
	// behind the anchor. One extra boundary is generated beyond it so the
	// oldest emitted cycle still has a start date.
	historicalCloses = 12

	// bestEffortWindowDays bounds the trailing window derived for accounts
	// whose anchor is unknown. No 12-month history is fabricated for them.
	bestEffortWindowDays = 60

	// bestEffortOpenDays extends the best-effort window past today so it
	// behaves like an open cycle.
	bestEffortOpenDays = 14

	// minCycleDays / maxCycleDays bound dynamic-anchor cycle lengths.
	minCycleDays = 29
	maxCycleDays = 32

	// defaultDueGraceDays is the close-to-due gap used when estimating due
	// dates for dynamic-anchor issuers.
	defaultDueGraceDays = 25

	// dueNudgeWindowDays is how far an estimated due date may be nudged
	// toward the account's known due day. Estimates are never fabricated
	// beyond this confidence window.
	dueNudgeWindowDays = 5
)

// BoundarySet is the output of boundary generation for one account.
// Ends holds statement close dates oldest-first; the oldest entry only marks
// the start of the cycle after it and is not itself emitted as a cycle.
// OpenEnd is the forward-looking close of the currently accruing period.
type BoundarySet struct {
	Ends       []time.Time
	OpenEnd    time.Time
	BestEffort bool
}

// BoundaryGenerator computes chains of statement-period boundaries from an
// anchor close date and a boundary policy. Generation is deterministic for
// identical inputs.
type BoundaryGenerator struct {
	dueGraceDays int
	log          zerolog.Logger
}

// NewBoundaryGenerator creates a boundary generator.
func NewBoundaryGenerator(log zerolog.Logger) *BoundaryGenerator {
	return &BoundaryGenerator{
		dueGraceDays: defaultDueGraceDays,
		log:          log.With().Str("component", "boundary_generator").Logger(),
	}
}

// SetDueGraceDays overrides the close-to-due gap used for dynamic-anchor due
// date estimation. Values outside (0, 45) are ignored.
func (g *BoundaryGenerator) SetDueGraceDays(days int) {
	if days > 0 && days < 45 {
		g.dueGraceDays = days
	}
}

// Generate derives the boundary chain for an account: up to 13 trailing close
// dates (12 historical plus the anchor, with one extra start-marker boundary)
// and one forward-looking open-cycle end date.
//
// When the policy is unconfigured the anchor's own day-of-month is used as a
// fixed-day policy, since the anchor is the only trustworthy signal.
func (g *BoundaryGenerator) Generate(anchor time.Time, policy domain.BoundaryPolicy) (BoundarySet, error) {
	anchor = Day(anchor)

	if !policy.Configured() {
		policy = domain.BoundaryPolicy{Kind: domain.PolicyFixedDay, Day: anchor.Day()}
	}

	switch policy.Kind {
	case domain.PolicyFixedDay:
		return g.generateMonthly(anchor, func(year int, month time.Month) int {
			return ClampDay(policy.Day, year, month)
		}), nil

	case domain.PolicyDaysBeforeMonthEnd:
		return g.generateMonthly(anchor, func(year int, month time.Month) int {
			return ClampDay(DaysInMonth(year, month)-policy.Offset, year, month)
		}), nil

	case domain.PolicyDynamicAnchor:
		return g.generateDynamic(anchor, policy.Day), nil

	case domain.PolicyExplicitDates:
		return g.generateExplicit(policy.ExplicitDates), nil
	}

	return BoundarySet{}, fmt.Errorf("unsupported boundary policy kind %q", policy.Kind)
}

// BestEffortWindow returns the single trailing window used for accounts with
// no known anchor at all. It covers roughly the last 60 days and stays open
// past today; no statement history is invented.
func (g *BoundaryGenerator) BestEffortWindow(today time.Time) BoundarySet {
	today = Day(today)
	return BoundarySet{
		Ends:       []time.Time{today.AddDate(0, 0, -bestEffortWindowDays)},
		OpenEnd:    today.AddDate(0, 0, bestEffortOpenDays),
		BestEffort: true,
	}
}

// generateMonthly builds the chain for policies whose close day is a pure
// function of the calendar month. The anchor replaces the computed close for
// its own month: the provider-reported close is authoritative.
func (g *BoundaryGenerator) generateMonthly(anchor time.Time, dayFor func(year int, month time.Month) int) BoundarySet {
	ends := make([]time.Time, 0, historicalCloses+2)

	// One extra month beyond the historical window supplies the start date
	// of the oldest emitted cycle.
	for i := historicalCloses + 1; i >= 1; i-- {
		y, m := AddMonths(anchor.Year(), anchor.Month(), -i)
		ends = append(ends, Date(y, m, dayFor(y, m)))
	}
	ends = append(ends, anchor)

	ny, nm := AddMonths(anchor.Year(), anchor.Month(), 1)
	openEnd := Date(ny, nm, dayFor(ny, nm))

	return BoundarySet{Ends: ends, OpenEnd: openEnd}
}

// generateDynamic walks backward from the anchor, choosing each cycle length
// from the rule table and clamping the resulting close day into the previous
// month. targetDay is the day the issuer anchors to; when zero the anchor's
// day is used.
func (g *BoundaryGenerator) generateDynamic(anchor time.Time, targetDay int) BoundarySet {
	if targetDay < 1 || targetDay > 31 {
		targetDay = anchor.Day()
	}

	ends := make([]time.Time, 0, historicalCloses+2)
	ends = append(ends, anchor)

	cur := anchor
	var recent []int // most recent chosen lengths, newest first

	for i := 0; i < historicalCloses+1; i++ {
		py, pm := AddMonths(cur.Year(), cur.Month(), -1)
		dp := DaysInMonth(py, pm)

		t := chooseCycleLength(dp, cur.Month(), recent)

		prevDay := cur.Day() + dp - t
		if prevDay < 1 {
			prevDay = 1
		}
		if prevDay > dp {
			prevDay = dp
		}

		prev := Date(py, pm, prevDay)
		ends = append([]time.Time{prev}, ends...)

		recent = append([]int{t}, recent...)
		if len(recent) > 3 {
			recent = recent[:3]
		}
		cur = prev
	}

	openEnd := g.nextDynamicClose(anchor, targetDay)

	return BoundarySet{Ends: ends, OpenEnd: openEnd}
}

// nextDynamicClose projects the next close forward from the anchor: the
// target day in the following month, pulled back into the valid cycle-length
// band when the month transition would stretch or squeeze it too far.
func (g *BoundaryGenerator) nextDynamicClose(anchor time.Time, targetDay int) time.Time {
	ny, nm := AddMonths(anchor.Year(), anchor.Month(), 1)
	candidate := Date(ny, nm, ClampDay(targetDay, ny, nm))

	length := int(candidate.Sub(anchor).Hours() / 24)
	if length < minCycleDays {
		candidate = candidate.AddDate(0, 0, minCycleDays-length)
	} else if length > maxCycleDays {
		candidate = candidate.AddDate(0, 0, maxCycleDays-length)
	}

	return candidate
}

// chooseCycleLength picks a dynamic-anchor cycle length (29-32 days) from a
// small rule table keyed on the previous month's day count and the current
// calendar month. Observed issuer data never shows three consecutive
// identical lengths, so the table breaks such runs explicitly.
//
// The table was reverse-engineered from specific issuers; it is a heuristic
// default, not a domain invariant.
func chooseCycleLength(daysInPrevMonth int, currentMonth time.Month, recent []int) int {
	var t int
	switch daysInPrevMonth {
	case 31:
		t = 31
	case 30:
		t = 30
	case 29:
		// Leap February runs one long to hold the anchor day
		t = 30
	case 28:
		t = 29
	default:
		t = 30
	}

	// Cycles closing right after the February transition drift a day late;
	// March pulls them back toward the anchor.
	if currentMonth == time.April && daysInPrevMonth == 31 && len(recent) > 0 && recent[0] <= 29 {
		t = 32
	}

	// Never three consecutive identical lengths
	if len(recent) >= 2 && recent[0] == t && recent[1] == t {
		if t >= maxCycleDays-1 {
			t--
		} else {
			t++
		}
	}

	if t < minCycleDays {
		t = minCycleDays
	}
	if t > maxCycleDays {
		t = maxCycleDays
	}

	return t
}

// generateExplicit uses manually supplied close dates verbatim. The open end
// is projected one month past the newest close, clamped to that month.
func (g *BoundaryGenerator) generateExplicit(dates []time.Time) BoundarySet {
	ends := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		ends = append(ends, Day(d))
	}
	sortDatesAscending(ends)

	// Keep the trailing window plus one start marker
	if max := historicalCloses + 2; len(ends) > max {
		ends = ends[len(ends)-max:]
	}

	newest := ends[len(ends)-1]
	ny, nm := AddMonths(newest.Year(), newest.Month(), 1)
	openEnd := Date(ny, nm, ClampDay(newest.Day(), ny, nm))

	return BoundarySet{Ends: ends, OpenEnd: openEnd}
}

// sortDatesAscending sorts in place, oldest first.
func sortDatesAscending(dates []time.Time) {
	for i := 1; i < len(dates); i++ {
		for j := i; j > 0 && dates[j].Before(dates[j-1]); j-- {
			dates[j], dates[j-1] = dates[j-1], dates[j]
		}
	}
}

// EstimateDueDate estimates the payment due date for a historical (non-anchor)
// cycle ending on closeEnd.
//
// When the account's current due date is known its day-of-month is reused in
// the first month that lands after the close. Dynamic-anchor policies instead
// take close + grace period, nudged onto the known due day when within the
// 5-day confidence window. With no known due date, only dynamic-anchor
// estimates are produced; other policies return nil rather than fabricate.
func (g *BoundaryGenerator) EstimateDueDate(closeEnd time.Time, policy domain.BoundaryPolicy, knownDue *time.Time) *time.Time {
	closeEnd = Day(closeEnd)

	if policy.Kind == domain.PolicyDynamicAnchor {
		candidate := closeEnd.AddDate(0, 0, g.dueGraceDays)
		if knownDue != nil {
			target := ClampDay(knownDue.Day(), candidate.Year(), candidate.Month())
			if diff := target - candidate.Day(); diff >= -dueNudgeWindowDays && diff <= dueNudgeWindowDays {
				candidate = Date(candidate.Year(), candidate.Month(), target)
			}
		}
		return &candidate
	}

	if knownDue == nil {
		return nil
	}

	// Reuse the known due day in the first month where it follows the close
	dueDay := knownDue.Day()
	candidate := Date(closeEnd.Year(), closeEnd.Month(), ClampDay(dueDay, closeEnd.Year(), closeEnd.Month()))
	if !candidate.After(closeEnd) {
		ny, nm := AddMonths(closeEnd.Year(), closeEnd.Month(), 1)
		candidate = Date(ny, nm, ClampDay(dueDay, ny, nm))
	}
	return &candidate
}
