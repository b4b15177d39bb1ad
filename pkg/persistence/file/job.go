package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// JobRepository handles job-related file operations.
type JobRepository struct {
	root string
	mu   sync.RWMutex
}

// NewJobRepository creates a new job repository.
func NewJobRepository(root string) *JobRepository {
	return &JobRepository{root: root}
}

// GetAll returns every stored job, newest first.
func (jr *JobRepository) GetAll(ctx context.Context) ([]*models.Job, error) {
	root := os.DirFS(path.Join(jr.root, "jobs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}

	jobs := make([]*models.Job, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		job, err := jr.GetByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsJobNotFound(err) {
				continue
			}

			return nil, err
		}

		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// GetByID retrieves a job by its ID from the file system.
func (jr *JobRepository) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	jr.mu.RLock()
	defer jr.mu.RUnlock()

	filePath := filepath.Clean(path.Join(jr.root, "jobs", jobID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewJobError("GetByID", jobID, persistence.ErrJobNotFound)
		}

		return nil, fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}

	var job models.Job

	err = json.Unmarshal(body, &job)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, nil
}

// Save saves a job to the file system.
func (jr *JobRepository) Save(_ context.Context, job *models.Job) error {
	if job == nil || job.ID == "" || strings.ContainsAny(job.ID, `/\`) {
		return persistence.NewJobError("Save", "", persistence.ErrInvalidJob)
	}

	jr.mu.Lock()
	defer jr.mu.Unlock()

	err := os.MkdirAll(path.Join(jr.root, "jobs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	return os.WriteFile(path.Join(jr.root, "jobs", job.ID+".json"), data, 0600)
}
