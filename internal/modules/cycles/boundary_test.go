package cycles

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvasko/cardsentry/internal/domain"
)

func testGenerator() *BoundaryGenerator {
	return NewBoundaryGenerator(zerolog.Nop())
}

func d(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestGenerateFixedDay(t *testing.T) {
	g := testGenerator()

	set, err := g.Generate(d(2024, time.March, 15), domain.BoundaryPolicy{
		Kind: domain.PolicyFixedDay,
		Day:  15,
	})
	require.NoError(t, err)

	// 12 historical closes + anchor + one start marker
	require.Len(t, set.Ends, historicalCloses+2)

	assert.Equal(t, d(2024, time.March, 15), set.Ends[len(set.Ends)-1])
	assert.Equal(t, d(2024, time.February, 15), set.Ends[len(set.Ends)-2])
	assert.Equal(t, d(2023, time.February, 15), set.Ends[0])
	assert.Equal(t, d(2024, time.April, 15), set.OpenEnd)
	assert.False(t, set.BestEffort)

	// The window before the anchor runs Feb 16 - Mar 15
	start := set.Ends[len(set.Ends)-2].AddDate(0, 0, 1)
	assert.Equal(t, d(2024, time.February, 16), start)
}

func TestGenerateFixedDayClampsShortMonths(t *testing.T) {
	g := testGenerator()

	set, err := g.Generate(d(2024, time.May, 31), domain.BoundaryPolicy{
		Kind: domain.PolicyFixedDay,
		Day:  31,
	})
	require.NoError(t, err)

	byMonth := make(map[time.Month]time.Time)
	for _, end := range set.Ends {
		if end.Year() == 2024 {
			byMonth[end.Month()] = end
		}
	}

	// 2024 is a leap year
	assert.Equal(t, d(2024, time.February, 29), byMonth[time.February])
	assert.Equal(t, d(2024, time.April, 30), byMonth[time.April])
	assert.Equal(t, d(2024, time.March, 31), byMonth[time.March])
	assert.Equal(t, d(2024, time.June, 30), set.OpenEnd)
}

func TestGenerateUnconfiguredPolicyAnchorsToReportedDay(t *testing.T) {
	g := testGenerator()

	set, err := g.Generate(d(2024, time.March, 15), domain.BoundaryPolicy{})
	require.NoError(t, err)

	assert.Equal(t, d(2024, time.March, 15), set.Ends[len(set.Ends)-1])
	assert.Equal(t, d(2024, time.February, 15), set.Ends[len(set.Ends)-2])
	assert.Equal(t, d(2024, time.April, 15), set.OpenEnd)
}

func TestGenerateDaysBeforeMonthEnd(t *testing.T) {
	g := testGenerator()

	set, err := g.Generate(d(2024, time.March, 28), domain.BoundaryPolicy{
		Kind:   domain.PolicyDaysBeforeMonthEnd,
		Offset: 3,
	})
	require.NoError(t, err)

	byMonth := make(map[time.Month]time.Time)
	for _, end := range set.Ends {
		if end.Year() == 2024 {
			byMonth[end.Month()] = end
		}
	}

	assert.Equal(t, d(2024, time.February, 26), byMonth[time.February]) // 29 - 3
	assert.Equal(t, d(2024, time.January, 28), byMonth[time.January])   // 31 - 3
	assert.Equal(t, d(2024, time.April, 27), set.OpenEnd)               // 30 - 3
}

func TestGenerateDeterministic(t *testing.T) {
	g := testGenerator()
	policy := domain.BoundaryPolicy{Kind: domain.PolicyDynamicAnchor, Day: 17}

	a, err := g.Generate(d(2024, time.July, 17), policy)
	require.NoError(t, err)
	b, err := g.Generate(d(2024, time.July, 17), policy)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerateDynamicLengthsStayInBand(t *testing.T) {
	g := testGenerator()

	set, err := g.Generate(d(2024, time.July, 15), domain.BoundaryPolicy{
		Kind: domain.PolicyDynamicAnchor,
		Day:  15,
	})
	require.NoError(t, err)
	require.Len(t, set.Ends, historicalCloses+2)

	for i := 1; i < len(set.Ends); i++ {
		length := int(set.Ends[i].Sub(set.Ends[i-1]).Hours() / 24)
		assert.GreaterOrEqual(t, length, minCycleDays,
			"cycle ending %s too short", set.Ends[i].Format(DateLayout))
		assert.LessOrEqual(t, length, maxCycleDays,
			"cycle ending %s too long", set.Ends[i].Format(DateLayout))
	}

	openLength := int(set.OpenEnd.Sub(set.Ends[len(set.Ends)-1]).Hours() / 24)
	assert.GreaterOrEqual(t, openLength, minCycleDays)
	assert.LessOrEqual(t, openLength, maxCycleDays)
}

func TestGenerateDynamicNeverThreeIdenticalLengths(t *testing.T) {
	g := testGenerator()

	// Sweep anchors across a year so the rule table sees every month
	// transition at least once.
	for month := time.January; month <= time.December; month++ {
		set, err := g.Generate(d(2024, month, 20), domain.BoundaryPolicy{
			Kind: domain.PolicyDynamicAnchor,
			Day:  20,
		})
		require.NoError(t, err)

		var lengths []int
		for i := 1; i < len(set.Ends); i++ {
			lengths = append(lengths, int(set.Ends[i].Sub(set.Ends[i-1]).Hours()/24))
		}

		for i := 2; i < len(lengths); i++ {
			if lengths[i] == lengths[i-1] && lengths[i-1] == lengths[i-2] {
				t.Fatalf("anchor month %s: three consecutive cycles of %d days: %v",
					month, lengths[i], lengths)
			}
		}
	}
}

func TestGenerateExplicitDates(t *testing.T) {
	g := testGenerator()

	// Deliberately unsorted input
	set, err := g.Generate(time.Time{}, domain.BoundaryPolicy{
		Kind: domain.PolicyExplicitDates,
		ExplicitDates: []time.Time{
			d(2024, time.March, 14),
			d(2024, time.January, 12),
			d(2024, time.February, 13),
		},
	})
	require.NoError(t, err)

	require.Len(t, set.Ends, 3)
	assert.Equal(t, d(2024, time.January, 12), set.Ends[0])
	assert.Equal(t, d(2024, time.February, 13), set.Ends[1])
	assert.Equal(t, d(2024, time.March, 14), set.Ends[2])
	assert.Equal(t, d(2024, time.April, 14), set.OpenEnd)
}

func TestGenerateExplicitDatesCapped(t *testing.T) {
	g := testGenerator()

	var dates []time.Time
	for i := 0; i < 20; i++ {
		dates = append(dates, d(2023, time.January, 10).AddDate(0, i, 0))
	}

	set, err := g.Generate(time.Time{}, domain.BoundaryPolicy{
		Kind:          domain.PolicyExplicitDates,
		ExplicitDates: dates,
	})
	require.NoError(t, err)

	// Trailing window plus the start marker, newest dates kept
	assert.Len(t, set.Ends, historicalCloses+2)
	assert.Equal(t, dates[len(dates)-1], set.Ends[len(set.Ends)-1])
}

func TestBestEffortWindow(t *testing.T) {
	g := testGenerator()

	set := g.BestEffortWindow(d(2024, time.May, 1))

	require.Len(t, set.Ends, 1)
	assert.Equal(t, d(2024, time.March, 2), set.Ends[0])
	assert.Equal(t, d(2024, time.May, 15), set.OpenEnd)
	assert.True(t, set.BestEffort)
}

func TestEstimateDueDateReusesKnownDueDay(t *testing.T) {
	g := testGenerator()
	policy := domain.BoundaryPolicy{Kind: domain.PolicyFixedDay, Day: 15}

	knownDue := d(2024, time.April, 10)

	// Due day falls before the close in its own month, so it rolls forward
	due := g.EstimateDueDate(d(2024, time.March, 15), policy, &knownDue)
	require.NotNil(t, due)
	assert.Equal(t, d(2024, time.April, 10), *due)

	// Due day lands after the close within the same month
	due = g.EstimateDueDate(d(2024, time.March, 5), policy, &knownDue)
	require.NotNil(t, due)
	assert.Equal(t, d(2024, time.March, 10), *due)
}

func TestEstimateDueDateWithoutSignalReturnsNil(t *testing.T) {
	g := testGenerator()

	due := g.EstimateDueDate(d(2024, time.March, 15), domain.BoundaryPolicy{
		Kind: domain.PolicyFixedDay,
		Day:  15,
	}, nil)

	assert.Nil(t, due)
}

func TestEstimateDueDateDynamicGraceAndNudge(t *testing.T) {
	g := testGenerator()
	policy := domain.BoundaryPolicy{Kind: domain.PolicyDynamicAnchor, Day: 15}

	// No known due date: close + grace
	due := g.EstimateDueDate(d(2024, time.March, 15), policy, nil)
	require.NotNil(t, due)
	assert.Equal(t, d(2024, time.April, 9), *due)

	// Known due day within the nudge window pulls the estimate onto it
	knownDue := d(2024, time.May, 12)
	due = g.EstimateDueDate(d(2024, time.March, 15), policy, &knownDue)
	require.NotNil(t, due)
	assert.Equal(t, d(2024, time.April, 12), *due)

	// Known due day outside the window leaves the estimate alone
	farDue := d(2024, time.May, 25)
	due = g.EstimateDueDate(d(2024, time.March, 15), policy, &farDue)
	require.NotNil(t, due)
	assert.Equal(t, d(2024, time.April, 9), *due)
}

func TestAddMonths(t *testing.T) {
	y, m := AddMonths(2024, time.March, -1)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.February, m)

	y, m = AddMonths(2024, time.January, -1)
	assert.Equal(t, 2023, y)
	assert.Equal(t, time.December, m)

	y, m = AddMonths(2024, time.December, 1)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.January, m)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2023, time.February))
	assert.Equal(t, 31, DaysInMonth(2024, time.January))
	assert.Equal(t, 30, DaysInMonth(2024, time.April))
}

func TestClampDay(t *testing.T) {
	assert.Equal(t, 29, ClampDay(31, 2024, time.February))
	assert.Equal(t, 15, ClampDay(15, 2024, time.February))
	assert.Equal(t, 1, ClampDay(0, 2024, time.February))
}
