package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

const jobColumns = `
			j.id
		  , j.status
		  , j.progress
		  , j.submission
		  , j.error
		  , j.created_at
		  , j.updated_at
		  , a.workflow
		  , a.metadata
		  , a.analysis
		  , a.costs
`

type scanner interface {
	Scan(dest ...any) error
}

// JobRepository handles job-related database operations.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sql.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

// GetAll returns all jobs from the database.
func (r *JobRepository) GetAll(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM jobs j
		LEFT JOIN artifacts a ON a.job_id = j.id
		ORDER BY j.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// GetByID returns a job together with its artifact.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM jobs j
		LEFT JOIN artifacts a ON a.job_id = j.id
		WHERE j.id = $1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJobError("GetByID", id, persistence.ErrJobNotFound)
		}

		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return job, nil
}

// Save upserts a job row. The artifact is stored separately.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return persistence.NewJobError("Save", "", persistence.ErrInvalidJob)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	submissionJSON, err := json.Marshal(job.Submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	var errorJSON any

	if job.Error != nil {
		encoded, err := json.Marshal(job.Error)
		if err != nil {
			return fmt.Errorf("failed to marshal job error: %w", err)
		}

		errorJSON = encoded
	}

	query := `
		INSERT INTO jobs (id, status, progress, submission, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			submission = EXCLUDED.submission,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		submissionJSON,
		errorJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}

	return nil
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		job    models.Job
		status string

		submission, jobError, workflow, metadata, analysis, costs []byte
	)

	err := row.Scan(
		&job.ID,
		&status,
		&job.Progress,
		&submission,
		&jobError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&workflow,
		&metadata,
		&analysis,
		&costs,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)

	err = json.Unmarshal(submission, &job.Submission)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission: %w", err)
	}

	if len(jobError) > 0 {
		job.Error = &models.JobError{}

		err = json.Unmarshal(jobError, job.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal job error: %w", err)
		}
	}

	if len(workflow) > 0 {
		job.Result, err = decodeArtifact(workflow, metadata, analysis, costs)
		if err != nil {
			return nil, err
		}
	}

	return &job, nil
}
