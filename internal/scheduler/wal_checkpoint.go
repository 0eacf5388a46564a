package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/database"
)

// WALCheckpointJob truncates the WAL files so they never grow unbounded.
// WAL mode moves writes into the -wal file; without periodic checkpoints a
// long-running service can accumulate gigabytes there.
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates a checkpoint job over the given databases.
func NewWALCheckpointJob(databases []*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Run checkpoints every database. One failure does not stop the rest.
func (j *WALCheckpointJob) Run() error {
	var firstErr error
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().
				Err(err).
				Str("database", db.Name()).
				Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("WAL checkpoint completed")
	}
	return firstErr
}

// Name returns the job name for scheduling and logging.
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}
