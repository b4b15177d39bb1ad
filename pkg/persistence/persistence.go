// Package persistence provides the storage abstraction for generation jobs and their artifacts.
package persistence

import (
	"context"

	"github.com/flowforge/flowforge/pkg/models"
)

type Persistence interface {
	Jobs(ctx context.Context) ([]*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
	JobByID(ctx context.Context, id string) (*models.Job, error)

	SaveArtifact(ctx context.Context, jobID string, artifact *models.Artifact) error
	ArtifactByJobID(ctx context.Context, jobID string) (*models.Artifact, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
