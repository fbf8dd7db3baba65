package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/folio-hq/folio/internal/database"
)

// CacheSweeper is anything with expired state to clear during maintenance
type CacheSweeper interface {
	SweepExpired() error
}

// MaintenanceJob performs the daily database maintenance pass: integrity
// check, WAL checkpoint, and cache sweep.
type MaintenanceJob struct {
	databases map[string]*database.DB
	sweepers  []CacheSweeper
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, sweepers []CacheSweeper, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		sweepers:  sweepers,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Integrity check first: a corrupt ledger must be surfaced loudly, not
	// papered over by a checkpoint.
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	// WAL checkpoint to prevent bloat. Not critical, so failures only warn.
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	for _, sweeper := range j.sweepers {
		if err := sweeper.SweepExpired(); err != nil {
			j.log.Warn().Err(err).Msg("Cache sweep failed")
		}
	}

	j.log.Info().Dur("elapsed", time.Since(startTime)).Msg("Daily maintenance completed")

	return nil
}
