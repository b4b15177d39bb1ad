package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// ArtifactRepository stores one artifact file per job.
type ArtifactRepository struct {
	root string
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(root string) *ArtifactRepository {
	return &ArtifactRepository{root: root}
}

// GetByJobID returns the artifact stored for a job.
func (ar *ArtifactRepository) GetByJobID(_ context.Context, jobID string) (*models.Artifact, error) {
	filePath := filepath.Clean(path.Join(ar.root, "artifacts", jobID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewJobError("GetByJobID", jobID, persistence.ErrArtifactNotFound)
		}

		return nil, fmt.Errorf("failed to fetch artifact for job %s: %w", jobID, err)
	}

	var artifact models.Artifact

	err = json.Unmarshal(body, &artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact for job %s: %w", jobID, err)
	}

	return &artifact, nil
}

// Save writes the artifact of a job, replacing any previous one.
func (ar *ArtifactRepository) Save(_ context.Context, jobID string, artifact *models.Artifact) error {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || artifact == nil {
		return persistence.NewJobError("SaveArtifact", jobID, persistence.ErrInvalidJob)
	}

	err := os.MkdirAll(path.Join(ar.root, "artifacts"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact for job %s: %w", jobID, err)
	}

	return os.WriteFile(path.Join(ar.root, "artifacts", jobID+".json"), data, 0600)
}
