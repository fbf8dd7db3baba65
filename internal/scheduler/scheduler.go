// Package scheduler runs recurring background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of recurring work
type Job interface {
	Run() error
}

// JobFunc adapts a plain function to the Job interface
type JobFunc func() error

// Run calls the wrapped function
func (f JobFunc) Run() error { return f() }

// Scheduler wraps robfig/cron with logging and panic isolation
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Register schedules a job with the given cron spec
func (s *Scheduler) Register(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error().
					Str("job", name).
					Interface("panic", p).
					Msg("Job panicked")
			}
		}()

		s.log.Debug().Str("job", name).Msg("Job starting")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Job failed")
			return
		}
		s.log.Debug().Str("job", name).Msg("Job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s with spec %q: %w", name, spec, err)
	}

	s.log.Info().Str("job", name).Str("spec", spec).Msg("Job scheduled")

	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
