// Package scheduler runs the background maintenance jobs on cron schedules:
// the overdue-rental sweep, cache purging and WAL checkpoints. Every run is
// recorded in the job history so operators can see what ran and how it went.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/cache"
)

// Job is one schedulable unit of background work. Run returns a short,
// human-readable outcome for the job history.
type Job interface {
	Name() string
	Run(ctx context.Context) (string, error)
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	history *cache.JobHistory
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]Job
}

// New creates a new scheduler
func New(history *cache.JobHistory, location *time.Location, log zerolog.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(location)),
		history: history,
		timeout: 10 * time.Minute,
		log:     log.With().Str("component", "scheduler").Logger(),
		jobs:    make(map[string]Job),
	}
}

// Register schedules a job with a standard 5-field cron spec. The job also
// becomes available for manual triggering via RunNow.
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.runJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}

	s.jobs[job.Name()] = job
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("Job scheduled")
	return nil
}

// RunNow triggers a registered job outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.runJob(ctx, job)
}

// JobNames lists registered jobs, sorted.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins cron execution.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	start := time.Now()

	var runID int64
	if s.history != nil {
		id, err := s.history.Start(ctx, job.Name())
		if err != nil {
			s.log.Warn().Err(err).Str("job", job.Name()).Msg("Failed to record job start")
		} else {
			runID = id
		}
	}

	detail, err := job.Run(ctx)

	status := "completed"
	if err != nil {
		status = "failed"
		detail = err.Error()
		s.log.Error().Err(err).Str("job", job.Name()).
			Dur("duration_ms", time.Since(start)).Msg("Job failed")
	} else {
		s.log.Info().Str("job", job.Name()).Str("detail", detail).
			Dur("duration_ms", time.Since(start)).Msg("Job completed")
	}

	if s.history != nil && runID != 0 {
		if ferr := s.history.Finish(ctx, runID, status, detail); ferr != nil {
			s.log.Warn().Err(ferr).Str("job", job.Name()).Msg("Failed to record job finish")
		}
	}

	return err
}
