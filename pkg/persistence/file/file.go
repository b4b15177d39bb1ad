// Package file provides file-based persistence implementation for jobs and artifacts.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// Persistence keeps one JSON document per job and per artifact under root.
type Persistence struct {
	root         string
	jobRepo      *JobRepository
	artifactRepo *ArtifactRepository
}

// NewPersistence stores jobs under root, which may carry a file:// prefix.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:         cleanRoot,
		jobRepo:      NewJobRepository(cleanRoot),
		artifactRepo: NewArtifactRepository(cleanRoot),
	}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck creates root if needed and checks that workers can write job files to it.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.root, 0o755)
	if err != nil {
		return fmt.Errorf("job directory %s: %w", fp.root, err)
	}

	probe, err := os.CreateTemp(fp.root, ".health-*")
	if err != nil {
		return fmt.Errorf("job directory %s is not writable: %w", fp.root, err)
	}

	_ = probe.Close()

	return os.Remove(probe.Name())
}

func (fp *Persistence) Jobs(ctx context.Context) ([]*models.Job, error) {
	return fp.jobRepo.GetAll(ctx)
}

func (fp *Persistence) SaveJob(ctx context.Context, job *models.Job) error {
	return fp.jobRepo.Save(ctx, job)
}

func (fp *Persistence) JobByID(ctx context.Context, id string) (*models.Job, error) {
	return fp.jobRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveArtifact(ctx context.Context, jobID string, artifact *models.Artifact) error {
	return fp.artifactRepo.Save(ctx, jobID, artifact)
}

func (fp *Persistence) ArtifactByJobID(ctx context.Context, jobID string) (*models.Artifact, error) {
	return fp.artifactRepo.GetByJobID(ctx, jobID)
}
