package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/complexity"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/generator"
	"github.com/flowforge/flowforge/pkg/jobs"
	"github.com/flowforge/flowforge/pkg/mocks"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/persistence/file"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/flowforge/flowforge/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     persistence.Persistence
	registry  *templates.Registry
	assembler *blueprint.Assembler
	bus       *mocks.MockEventBus
	logger    *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := templates.NewDefaultRegistry(logger)
	require.NoError(t, err)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return &fixture{
		store:     file.NewPersistence(t.TempDir()),
		registry:  registry,
		assembler: blueprint.NewAssembler(registry, logger),
		bus:       bus,
		logger:    logger,
	}
}

func (f *fixture) processor(gen jobs.Generator) *jobs.Processor {
	return jobs.NewProcessor(
		f.store,
		complexity.NewAnalyzer(complexity.DefaultThreshold),
		gen,
		validator.New(f.registry, f.logger),
		f.logger,
		jobs.WithEventPublisher(f.bus),
		jobs.WithWorkerID("worker-test"),
	)
}

func (f *fixture) submit(t *testing.T, submission models.JobSubmission) *models.Job {
	t.Helper()

	job := testutil.CreateTestJob(submission)
	require.NoError(t, f.store.SaveJob(t.Context(), job))

	return job
}

type stubGenerator struct {
	result *generator.Result
	err    error
}

func (s *stubGenerator) Generate(context.Context, generator.Input) (*generator.Result, error) {
	return s.result, s.err
}

func TestProcessor_CompletesWithFallback(t *testing.T) {
	f := newFixture(t)
	gen := generator.New(f.assembler, f.registry, f.logger)

	job := f.submit(t, testutil.CreateTestSubmission())

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, processed.Status)
	assert.Equal(t, 100, processed.Progress)
	assert.Nil(t, processed.Error)
	require.NotNil(t, processed.Result)
	assert.Equal(t, models.StrategyFallback, processed.Result.Metadata.StrategyUsed)
	assert.True(t, processed.Result.Metadata.ValidationPassed)
	assert.Equal(t, models.ComplexityTierSimple, processed.Result.Metadata.ComplexityTier)

	stored, err := f.store.JobByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)

	artifact, err := f.store.ArtifactByJobID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyFallback, artifact.Workflow.Meta.StrategyUsed)

	assert.Equal(t, []events.EventType{events.JobCompletedEvent}, f.bus.PublishedTypes())
}

func TestProcessor_DiscoveryTimeoutStillCompletes(t *testing.T) {
	f := newFixture(t)

	service := &mocks.MockDiscoveryService{}
	service.On("Ping", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(context.DeadlineExceeded)

	gen := generator.New(f.assembler, f.registry, f.logger,
		generator.WithDiscovery(service),
		generator.WithConfig(generator.Config{DiscoveryTimeout: 20 * time.Millisecond}),
	)

	submission := testutil.CreateTestSubmission(func(s *models.JobSubmission) {
		s.Plan = testutil.CreateTestPlan(testutil.WithSteps(
			testutil.Step("lookup", "Lookup Customer", "postgres"),
			testutil.Step("notify", "Notify Team", "slack"),
		))
	})
	job := f.submit(t, submission)

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, processed.Status)
	require.NotNil(t, processed.Result)
	assert.Equal(t, models.StrategyFallback, processed.Result.Metadata.StrategyUsed)
	assert.Contains(t, processed.Result.Metadata.FallbackReason, "did not answer")
	service.AssertExpectations(t)
}

func TestProcessor_ConstructionFailure(t *testing.T) {
	f := newFixture(t)
	strict := blueprint.NewAssembler(f.registry, f.logger, blueprint.WithoutGenericFallback())
	gen := generator.New(strict, f.registry, f.logger)

	submission := testutil.CreateTestSubmission(func(s *models.JobSubmission) {
		s.Plan = testutil.CreateTestPlan(testutil.WithSteps(testutil.Step("teleport", "Teleport", "quantum_entangler")))
	})
	job := f.submit(t, submission)

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, processed.Status)
	assert.Equal(t, 40, processed.Progress)
	require.NotNil(t, processed.Error)
	assert.Equal(t, models.ErrorKindConstruction, processed.Error.Kind)
	assert.Contains(t, processed.Error.Message, "teleport")
	assert.Nil(t, processed.Result)

	_, err = f.store.ArtifactByJobID(t.Context(), job.ID)
	assert.True(t, persistence.IsArtifactNotFound(err))

	assert.Equal(t, []events.EventType{events.JobFailedEvent}, f.bus.PublishedTypes())
}

func TestProcessor_ValidationFailure(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateTestGraph(testutil.WithoutParameter("HTTP Request", models.TerminalParam))
	gen := &stubGenerator{result: &generator.Result{Strategy: models.StrategyIntelligent, Graph: graph}}

	job := f.submit(t, testutil.CreateTestSubmission())

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, processed.Status)
	assert.Equal(t, 70, processed.Progress)
	require.NotNil(t, processed.Error)
	assert.Equal(t, models.ErrorKindValidation, processed.Error.Kind)
	require.Len(t, processed.Error.ValidationErrors, 1)
	assert.Contains(t, processed.Error.ValidationErrors[0], `"HTTP Request"`)
}

func TestProcessor_GeneratorInternalError(t *testing.T) {
	f := newFixture(t)
	gen := &stubGenerator{err: errors.New("boom")}

	job := f.submit(t, testutil.CreateTestSubmission())

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, processed.Status)
	assert.Equal(t, models.ErrorKindInternal, processed.Error.Kind)
	assert.Equal(t, "boom", processed.Error.Message)
}

func TestProcessor_PublishesBudgetWarnings(t *testing.T) {
	f := newFixture(t)

	gen := &stubGenerator{result: &generator.Result{
		Strategy:       models.StrategyIntelligent,
		Graph:          testutil.CreateTestGraph(),
		Costs:          []models.CostRecord{{Model: "m", Cost: 0.2}},
		BudgetWarnings: []string{"call cost $0.2000 exceeds per-call budget $0.1000"},
	}}

	job := f.submit(t, testutil.CreateTestSubmission())

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, processed.Status)
	assert.Equal(t, []events.EventType{events.BudgetExceededEvent, events.JobCompletedEvent}, f.bus.PublishedTypes())
	assert.Len(t, processed.Result.Costs, 1)
}

func TestProcessor_TerminalJobIsNotReprocessed(t *testing.T) {
	f := newFixture(t)
	gen := &stubGenerator{err: errors.New("must not be called")}

	job := testutil.CreateTestJob(testutil.CreateTestSubmission())
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	require.NoError(t, f.store.SaveJob(t.Context(), job))

	processed, err := f.processor(gen).Process(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, processed.Status)
	assert.Empty(t, f.bus.PublishedTypes())
}

func TestProcessor_ResumesInterruptedJob(t *testing.T) {
	tests := []struct {
		status   models.JobStatus
		progress int
	}{
		{models.JobStatusPlanning, 10},
		{models.JobStatusGenerating, 40},
		{models.JobStatusValidating, 70},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			processor := f.processor(generator.New(f.assembler, f.registry, f.logger))

			job := testutil.CreateTestJob(testutil.CreateTestSubmission())
			job.Status = tt.status
			job.Progress = tt.progress
			require.NoError(t, f.store.SaveJob(t.Context(), job))

			processed, err := processor.Process(t.Context(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusCompleted, processed.Status)
			assert.Equal(t, 100, processed.Progress)

			artifact, err := f.store.ArtifactByJobID(t.Context(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StrategyFallback, artifact.Metadata.StrategyUsed)
		})
	}
}

func TestProcessor_ProcessUnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor(&stubGenerator{}).Process(t.Context(), "missing")
	assert.True(t, persistence.IsJobNotFound(err))
}

func TestProcessor_Transition(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("SaveJob", mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := jobs.NewProcessor(store, complexity.NewAnalyzer(0), &stubGenerator{}, nil, logger)

	job := &models.Job{ID: "job-1", Status: models.JobStatusPending}

	require.NoError(t, p.Transition(t.Context(), job, models.JobStatusPlanning))
	assert.Equal(t, 10, job.Progress)

	// Same status twice is a no-op.
	require.NoError(t, p.Transition(t.Context(), job, models.JobStatusPlanning))
	store.AssertNumberOfCalls(t, "SaveJob", 1)

	require.NoError(t, p.Transition(t.Context(), job, models.JobStatusGenerating))
	assert.Equal(t, 40, job.Progress)

	err := p.Transition(t.Context(), job, models.JobStatusPlanning)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	err = p.Transition(t.Context(), job, models.JobStatusCompleted)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	require.NoError(t, p.Transition(t.Context(), job, models.JobStatusFailed))
	assert.Equal(t, 40, job.Progress)

	err = p.Transition(t.Context(), job, models.JobStatusGenerating)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
}

func TestProcessor_TransitionPersistError(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("SaveJob", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := jobs.NewProcessor(store, complexity.NewAnalyzer(0), &stubGenerator{}, nil, logger)

	err := p.Transition(t.Context(), &models.Job{ID: "job-1", Status: models.JobStatusPending}, models.JobStatusPlanning)
	assert.ErrorContains(t, err, "disk full")
}
