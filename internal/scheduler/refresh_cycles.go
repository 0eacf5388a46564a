package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/modules/cycles"
)

// RefreshCyclesJob recomputes billing cycles for every tracked account.
// Normally scheduled a few times a day; also triggered on demand after a
// transaction import.
type RefreshCyclesJob struct {
	orchestrator *cycles.Orchestrator
	log          zerolog.Logger
}

// NewRefreshCyclesJob creates a cycle refresh job.
func NewRefreshCyclesJob(orchestrator *cycles.Orchestrator, log zerolog.Logger) *RefreshCyclesJob {
	return &RefreshCyclesJob{
		orchestrator: orchestrator,
		log:          log.With().Str("job", "refresh_cycles").Logger(),
	}
}

// Run refreshes all accounts. Per-account failures are already isolated by
// the orchestrator; the job only fails when the account list itself cannot
// be loaded or every account failed.
func (j *RefreshCyclesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	results, err := j.orchestrator.RefreshAll(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	if failed > 0 && failed == len(results) {
		return fmt.Errorf("all %d accounts failed to refresh", failed)
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RefreshCyclesJob) Name() string {
	return "refresh_cycles"
}
