package cycles

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nvasko/cardsentry/internal/domain"
)

// SpendTrend summarizes spend across an account's closed cycles.
type SpendTrend struct {
	// Cycles is how many closed cycles fed the summary.
	Cycles int `json:"cycles"`
	// MeanSpend and StdDev describe the spend distribution.
	MeanSpend float64 `json:"mean_spend"`
	StdDev    float64 `json:"std_dev"`
	// Slope is the least-squares trend in dollars per cycle, oldest to
	// newest. Positive means spend is growing.
	Slope float64 `json:"slope"`
	// LatestSpend and LatestDeviation place the most recent closed cycle
	// against the mean, in standard deviations. Zero when StdDev is zero.
	LatestSpend     float64 `json:"latest_spend"`
	LatestDeviation float64 `json:"latest_deviation"`
}

// ComputeSpendTrend summarizes the closed cycles in a chain. Open cycles
// are excluded: partial windows would drag the mean down. Returns nil when
// fewer than two closed cycles exist, since neither a deviation nor a slope
// means anything for a single point.
func ComputeSpendTrend(chain []domain.BillingCycle, today time.Time) *SpendTrend {
	var closed []domain.BillingCycle
	for i := range chain {
		if !chain[i].IsOpen(today) {
			closed = append(closed, chain[i])
		}
	}
	if len(closed) < 2 {
		return nil
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].EndDate.Before(closed[j].EndDate)
	})

	xs := make([]float64, len(closed))
	ys := make([]float64, len(closed))
	for i, c := range closed {
		xs[i] = float64(i)
		ys[i] = c.TotalSpend
	}

	mean, std := stat.MeanStdDev(ys, nil)
	_, slope := stat.LinearRegression(xs, ys, nil, false)

	latest := ys[len(ys)-1]
	var deviation float64
	if std > 0 {
		deviation = (latest - mean) / std
	}

	return &SpendTrend{
		Cycles:          len(closed),
		MeanSpend:       mean,
		StdDev:          std,
		Slope:           slope,
		LatestSpend:     latest,
		LatestDeviation: deviation,
	}
}
