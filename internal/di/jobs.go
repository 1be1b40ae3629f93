package di

import (
	"fmt"

	"github.com/aristath/quartermaster/internal/scheduler"
)

// Job schedules. The overdue sweep runs after midnight in the configured
// timezone so "past the end date" is judged on a fresh wall date.
const (
	specMarkOverdue   = "15 0 * * *"
	specCachePurge    = "*/15 * * * *"
	specWALCheckpoint = "30 3 * * *"
	specHealthCheck   = "0 4 * * *"
)

// buildJobs constructs the scheduler and registers the maintenance jobs.
func (c *Container) buildJobs() error {
	c.Scheduler = scheduler.New(c.JobHistory, c.Config.Location(), c.Log)

	register := []struct {
		spec string
		job  scheduler.Job
	}{
		{specMarkOverdue, scheduler.NewMarkOverdueJob(c.RentalService)},
		{specCachePurge, scheduler.NewCachePurgeJob(c.Cache)},
		{specWALCheckpoint, scheduler.NewWALCheckpointJob(c.RentalDB, c.CacheDB)},
		{specHealthCheck, scheduler.NewHealthCheckJob(c.RentalDB, c.CacheDB)},
	}
	for _, r := range register {
		if err := c.Scheduler.Register(r.spec, r.job); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
	}

	return nil
}
