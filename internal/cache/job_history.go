package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// JobHistory records scheduled-job runs in cache.db.
type JobHistory struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewJobHistory creates a new job history repository
func NewJobHistory(db *sql.DB, log zerolog.Logger) *JobHistory {
	return &JobHistory{
		db:  db,
		log: log.With().Str("repo", "job_history").Logger(),
	}
}

// JobRun is one recorded job execution.
type JobRun struct {
	ID         int64      `json:"id"`
	JobName    string     `json:"job_name"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Start records the beginning of a job run and returns its id.
func (j *JobHistory) Start(ctx context.Context, jobName string) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO job_history (job_name, status, started_at)
		VALUES (?, 'running', ?)
	`, jobName, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record job start: %w", err)
	}
	return res.LastInsertId()
}

// Finish closes a job run with its outcome.
func (j *JobHistory) Finish(ctx context.Context, runID int64, status, detail string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE job_history SET status = ?, detail = ?, finished_at = ?
		WHERE id = ?
	`, status, detail, time.Now().Unix(), runID)
	if err != nil {
		return fmt.Errorf("failed to record job finish: %w", err)
	}
	return nil
}

// Recent returns the latest runs for a job, newest first.
func (j *JobHistory) Recent(ctx context.Context, jobName string, limit int) ([]JobRun, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, job_name, status, detail, started_at, finished_at
		FROM job_history
		WHERE job_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var run JobRun
		var detail sql.NullString
		var startedAt int64
		var finishedAt sql.NullInt64
		if err := rows.Scan(&run.ID, &run.JobName, &run.Status, &detail, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		run.Detail = detail.String
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
