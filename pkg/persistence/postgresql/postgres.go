// Package postgresql provides PostgreSQL persistence implementation for jobs and artifacts.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Pool limits. Workers hold a connection only for single-row job updates.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Persistence stores jobs and artifacts in PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	jobRepo      *JobRepository
	artifactRepo *ArtifactRepository
}

// NewPersistence connects to databaseURL and brings the jobs schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	database.SetMaxOpenConns(maxOpenConns)
	database.SetMaxIdleConns(maxIdleConns)
	database.SetConnMaxLifetime(connMaxLifetime)

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrator.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.InfoContext(ctx, "PostgreSQL job store ready", "schema_version", migrator.LatestVersion())

	return &Persistence{
		db:           database,
		logger:       logger,
		jobRepo:      NewJobRepository(database, logger),
		artifactRepo: NewArtifactRepository(database),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// HealthCheck pings the database and reports pool exhaustion as unhealthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	stats := p.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections && stats.WaitCount > 0 {
		return fmt.Errorf("connection pool exhausted: %d in use, %d waits", stats.InUse, stats.WaitCount)
	}

	return nil
}

// Jobs returns all jobs, newest first.
func (p *Persistence) Jobs(ctx context.Context) ([]*models.Job, error) {
	return p.jobRepo.GetAll(ctx)
}

// JobByID returns a job with its artifact, if any.
func (p *Persistence) JobByID(ctx context.Context, id string) (*models.Job, error) {
	return p.jobRepo.GetByID(ctx, id)
}

// SaveJob upserts a job row.
func (p *Persistence) SaveJob(ctx context.Context, job *models.Job) error {
	return p.jobRepo.Save(ctx, job)
}

// SaveArtifact stores the artifact of a job, replacing any previous one.
func (p *Persistence) SaveArtifact(ctx context.Context, jobID string, artifact *models.Artifact) error {
	return p.artifactRepo.Save(ctx, jobID, artifact)
}

// ArtifactByJobID returns the artifact stored for a job.
func (p *Persistence) ArtifactByJobID(ctx context.Context, jobID string) (*models.Artifact, error) {
	return p.artifactRepo.GetByJobID(ctx, jobID)
}
