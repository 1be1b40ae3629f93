package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/quartermaster/internal/cache"
	"github.com/aristath/quartermaster/internal/database"
	"github.com/aristath/quartermaster/internal/modules/rental"
)

// MarkOverdueJob is the daily reconciliation sweep: rental lines past their
// end date plus grace are marked late and their headers re-aggregated.
type MarkOverdueJob struct {
	service *rental.Service
}

// NewMarkOverdueJob creates the overdue sweep job
func NewMarkOverdueJob(service *rental.Service) *MarkOverdueJob {
	return &MarkOverdueJob{service: service}
}

// Name returns the job name
func (j *MarkOverdueJob) Name() string { return "mark_overdue" }

// Run executes the sweep. A zero asOf lets the engine use the current wall
// date in its configured timezone.
func (j *MarkOverdueJob) Run(ctx context.Context) (string, error) {
	changed, err := j.service.MarkOverdue(ctx, time.Time{})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d rentals marked late", changed), nil
}

// CachePurgeJob evicts expired availability snapshots from cache.db.
type CachePurgeJob struct {
	store *cache.Store
}

// NewCachePurgeJob creates the cache purge job
func NewCachePurgeJob(store *cache.Store) *CachePurgeJob {
	return &CachePurgeJob{store: store}
}

// Name returns the job name
func (j *CachePurgeJob) Name() string { return "cache_purge" }

// Run executes the purge
func (j *CachePurgeJob) Run(ctx context.Context) (string, error) {
	removed, err := j.store.Purge(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d expired entries removed", removed), nil
}

// WALCheckpointJob truncates the WAL files so they do not grow unbounded
// between restarts.
type WALCheckpointJob struct {
	dbs []*database.DB
}

// NewWALCheckpointJob creates the WAL checkpoint job
func NewWALCheckpointJob(dbs ...*database.DB) *WALCheckpointJob {
	return &WALCheckpointJob{dbs: dbs}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run checkpoints every database. The first failure aborts; later databases
// get checkpointed on the next run.
func (j *WALCheckpointJob) Run(ctx context.Context) (string, error) {
	for _, db := range j.dbs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d databases checkpointed", len(j.dbs)), nil
}

// HealthCheckJob pings and integrity-checks the core databases.
type HealthCheckJob struct {
	dbs []*database.DB
}

// NewHealthCheckJob creates the database health check job
func NewHealthCheckJob(dbs ...*database.DB) *HealthCheckJob {
	return &HealthCheckJob{dbs: dbs}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string { return "health_check" }

// Run executes the health checks
func (j *HealthCheckJob) Run(ctx context.Context) (string, error) {
	for _, db := range j.dbs {
		if err := db.HealthCheck(ctx); err != nil {
			return "", fmt.Errorf("health check failed for %s: %w", db.Name(), err)
		}
	}
	return fmt.Sprintf("%d databases healthy", len(j.dbs)), nil
}
