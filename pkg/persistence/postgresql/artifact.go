package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// ArtifactRepository stores generated workflow graphs with their generation metadata.
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Save upserts the artifact of a job.
func (r *ArtifactRepository) Save(ctx context.Context, jobID string, artifact *models.Artifact) error {
	if jobID == "" || artifact == nil || artifact.Workflow == nil {
		return persistence.NewJobError("SaveArtifact", jobID, persistence.ErrInvalidJob)
	}

	workflowJSON, err := json.Marshal(artifact.Workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	metadataJSON, err := json.Marshal(artifact.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	analysisJSON, err := json.Marshal(artifact.Analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	costsJSON, err := json.Marshal(artifact.Costs)
	if err != nil {
		return fmt.Errorf("failed to marshal costs: %w", err)
	}

	query := `
		INSERT INTO artifacts (job_id, workflow, strategy_used, complexity_tier, validation_passed, metadata, analysis, costs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			workflow = EXCLUDED.workflow,
			strategy_used = EXCLUDED.strategy_used,
			complexity_tier = EXCLUDED.complexity_tier,
			validation_passed = EXCLUDED.validation_passed,
			metadata = EXCLUDED.metadata,
			analysis = EXCLUDED.analysis,
			costs = EXCLUDED.costs
	`

	_, err = r.db.ExecContext(ctx, query,
		jobID,
		workflowJSON,
		artifact.Metadata.StrategyUsed,
		artifact.Metadata.ComplexityTier,
		artifact.Metadata.ValidationPassed,
		metadataJSON,
		analysisJSON,
		costsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact for job %s: %w", jobID, err)
	}

	return nil
}

// GetByJobID returns the artifact stored for a job.
func (r *ArtifactRepository) GetByJobID(ctx context.Context, jobID string) (*models.Artifact, error) {
	query := `SELECT workflow, metadata, analysis, costs FROM artifacts WHERE job_id = $1`

	var workflow, metadata, analysis, costs []byte

	err := r.db.QueryRowContext(ctx, query, jobID).Scan(&workflow, &metadata, &analysis, &costs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJobError("GetByJobID", jobID, persistence.ErrArtifactNotFound)
		}

		return nil, fmt.Errorf("failed to query artifact for job %s: %w", jobID, err)
	}

	return decodeArtifact(workflow, metadata, analysis, costs)
}

func decodeArtifact(workflow, metadata, analysis, costs []byte) (*models.Artifact, error) {
	artifact := &models.Artifact{Workflow: &models.WorkflowGraph{}}

	err := json.Unmarshal(workflow, artifact.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	err = json.Unmarshal(metadata, &artifact.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	if len(analysis) > 0 {
		err = json.Unmarshal(analysis, &artifact.Analysis)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
	}

	if len(costs) > 0 {
		err = json.Unmarshal(costs, &artifact.Costs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal costs: %w", err)
		}
	}

	return artifact, nil
}
