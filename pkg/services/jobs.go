package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Jobs accepts generation jobs and answers status queries.
type Jobs struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewJobs creates a new job service. A nil publisher stores jobs without notifying workers.
func NewJobs(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		persistence: persistence,
		publisher:   publisher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "job_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (j *Jobs) HealthCheck(ctx context.Context) (string, bool) {
	if j.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := j.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Submit stores a pending job for the submission and announces it on the event bus.
func (j *Jobs) Submit(ctx context.Context, submission *models.JobSubmission) (*models.Job, error) {
	if submission == nil {
		return nil, ErrSubmissionNil
	}

	if err := j.validateSubmission(submission); err != nil {
		return nil, err
	}

	if submission.ID == "" {
		submission.ID = uuid.NewString()
	} else if _, err := j.persistence.JobByID(ctx, submission.ID); err == nil {
		return nil, &ServiceError{Op: "Submit", Code: "job_exists", Message: "job " + submission.ID + " already exists", Err: ErrJobExists}
	} else if !persistence.IsJobNotFound(err) {
		return nil, fmt.Errorf("failed to check job %s: %w", submission.ID, err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:         submission.ID,
		Status:     models.JobStatusPending,
		Submission: *submission,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := j.persistence.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	j.logger.InfoContext(ctx, "job submitted", "job_id", job.ID)

	if j.publisher == nil {
		return job, nil
	}

	if err := j.publisher.Publish(ctx, job.ID, events.NewJobSubmitted(job)); err != nil {
		j.logger.ErrorContext(ctx, "failed to publish job submitted event", "job_id", job.ID, "error", err)

		return job, fmt.Errorf("job %s stored but not dispatched: %w", job.ID, err)
	}

	return job, nil
}

// Status returns the public status view of a job.
func (j *Jobs) Status(ctx context.Context, id string) (*models.JobStatusView, error) {
	job, err := j.fetch(ctx, "Status", id)
	if err != nil {
		return nil, err
	}

	view := job.View()

	return &view, nil
}

// Artifact returns the stored artifact of a completed job.
func (j *Jobs) Artifact(ctx context.Context, id string) (*models.Artifact, error) {
	job, err := j.fetch(ctx, "Artifact", id)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusCompleted {
		return nil, &ServiceError{
			Op:      "Artifact",
			Code:    "artifact_pending",
			Message: fmt.Sprintf("job %s is %s", id, job.Status),
			Err:     ErrArtifactPending,
		}
	}

	artifact, err := j.persistence.ArtifactByJobID(ctx, id)
	if err != nil {
		if persistence.IsArtifactNotFound(err) && job.Result != nil {
			return job.Result, nil
		}

		return nil, fmt.Errorf("failed to fetch artifact for job %s: %w", id, err)
	}

	return artifact, nil
}

func (j *Jobs) fetch(ctx context.Context, op, id string) (*models.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewValidationError(op, "empty_job_id", "job ID cannot be empty", ErrEmptyJobID)
	}

	job, err := j.persistence.JobByID(ctx, id)
	if err != nil {
		if persistence.IsJobNotFound(err) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to fetch job %s: %w", id, err)
	}

	return job, nil
}

func (j *Jobs) validateSubmission(submission *models.JobSubmission) error {
	if err := j.validate.Struct(submission); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s failed on %s", fieldErr.Namespace(), fieldErr.Tag()))
			}

			return NewValidationError("Submit", "invalid_submission", strings.Join(fields, "; "), ErrInvalidSubmission)
		}

		return NewValidationError("Submit", "invalid_submission", err.Error(), ErrInvalidSubmission)
	}

	if submission.Plan == nil && len(submission.AutomationOpportunities) == 0 {
		return NewValidationError("Submit", "invalid_submission",
			"submission needs a plan or at least one automation opportunity", ErrInvalidSubmission)
	}

	return nil
}
