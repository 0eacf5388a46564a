package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs the nightly backup: snapshot, upload, rotate.
type BackupJob struct {
	service *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a backup job.
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Run creates and uploads a backup, then rotates old archives. Rotation
// failures are logged but do not fail the job: the new archive is already
// safe.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *BackupJob) Name() string {
	return "s3_backup"
}
