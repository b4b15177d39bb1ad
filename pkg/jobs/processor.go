// Package jobs drives a generation job from submission to a terminal state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/contextopt"
	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/generator"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/otelhelper"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidTransition is returned when a status update would move a job backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Progress reported on entering each status.
var stageProgress = map[models.JobStatus]int{
	models.JobStatusPending:    0,
	models.JobStatusPlanning:   10,
	models.JobStatusGenerating: 40,
	models.JobStatusValidating: 70,
	models.JobStatusCompleted:  100,
}

// Analyzer scores plans.
type Analyzer interface {
	Analyze(plan *models.OrchestrationPlan, business models.BusinessContext) models.ComplexityAnalysis
}

// Generator produces a workflow graph for a plan.
type Generator interface {
	Generate(ctx context.Context, in generator.Input) (*generator.Result, error)
}

// GraphValidator checks a finished graph.
type GraphValidator interface {
	Validate(ctx context.Context, graph *models.WorkflowGraph) models.ValidationResult
}

// Option configures a Processor.
type Option func(*Processor)

// WithEventPublisher publishes job lifecycle events.
func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Processor) {
		p.publisher = publisher
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

// WithWorkerID stamps events with the processing worker.
func WithWorkerID(id string) Option {
	return func(p *Processor) {
		p.workerID = id
	}
}

// Processor is the job state machine. A job is processed by one call to Process or Run.
type Processor struct {
	store     persistence.Persistence
	analyzer  Analyzer
	generator Generator
	validator GraphValidator
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	workerID  string
	logger    *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(
	store persistence.Persistence,
	analyzer Analyzer,
	gen Generator,
	graphValidator GraphValidator,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	p := &Processor{
		store:     store,
		analyzer:  analyzer,
		generator: gen,
		validator: graphValidator,
		tracer:    otel.Tracer("flowforge.jobs"),
		logger:    logger.With("module", "job_processor"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process loads a stored job and runs it. Jobs already in a terminal state are returned unchanged,
// so redelivered submissions are harmless. A job left in planning, generating or validating by an
// interrupted worker is resumed without moving its status backwards.
func (p *Processor) Process(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := p.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	if job.Status.IsTerminal() {
		p.logger.InfoContext(ctx, "Job already finished", "job_id", job.ID, "status", job.Status)

		return job, nil
	}

	if job.Status != models.JobStatusPending {
		p.logger.WarnContext(ctx, "Resuming interrupted job", "job_id", job.ID, "status", job.Status, "progress", job.Progress)
	}

	return p.Run(ctx, job)
}

// Run drives job through planning, generating and validating to completed or failed.
// Construction and validation failures are recorded on the job; the returned error
// reports only storage or state machine problems.
func (p *Processor) Run(ctx context.Context, job *models.Job) (*models.Job, error) {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "job.process",
		attribute.String(otelhelper.JobIDKey, job.ID))
	defer span.End()

	logger := p.logger.With("job_id", job.ID)

	// planning
	err := p.enter(ctx, job, models.JobStatusPlanning)
	if err != nil {
		otelhelper.SetError(span, err)

		return job, err
	}

	plan := job.Submission.ResolvePlan()
	analysis, optimized := p.plan(ctx, plan, job.Submission.BusinessContext)

	span.SetAttributes(
		attribute.String(otelhelper.ComplexityTierKey, string(analysis.Tier)),
		attribute.String(otelhelper.ArchetypeKey, string(optimized.Archetype)),
	)

	logger.InfoContext(ctx, "Plan analyzed",
		"tier", analysis.Tier,
		"score", analysis.Score,
		"archetype", optimized.Archetype)

	// generating
	err = p.enter(ctx, job, models.JobStatusGenerating)
	if err != nil {
		otelhelper.SetError(span, err)

		return job, err
	}

	result, err := p.generate(ctx, generator.Input{
		JobID:    job.ID,
		Plan:     plan,
		Analysis: analysis,
		Context:  optimized,
	})
	if err != nil {
		otelhelper.StageError(span, string(models.JobStatusGenerating), err)

		kind := models.ErrorKindInternal
		if blueprint.IsConstructionError(err) {
			kind = models.ErrorKindConstruction
		}

		return job, p.fail(ctx, job, &models.JobError{Kind: kind, Message: err.Error()}, started)
	}

	span.SetAttributes(attribute.String(otelhelper.GenerationStrategyKey, string(result.Strategy)))

	if len(result.BudgetWarnings) > 0 {
		p.publish(ctx, job.ID, events.BudgetExceeded{
			BaseEvent: p.baseEvent(events.BudgetExceededEvent, job.ID),
			Warnings:  result.BudgetWarnings,
			Cost:      totalCost(result.Costs),
		})
	}

	// validating
	err = p.enter(ctx, job, models.JobStatusValidating)
	if err != nil {
		otelhelper.SetError(span, err)

		return job, err
	}

	verdict := p.validate(ctx, result.Graph)
	if !verdict.Valid {
		failure := validator.AsError(verdict)
		otelhelper.StageError(span, string(models.JobStatusValidating), failure)

		return job, p.fail(ctx, job, &models.JobError{
			Kind:             models.ErrorKindValidation,
			Message:          failure.Error(),
			ValidationErrors: verdict.Errors,
		}, started)
	}

	artifact := &models.Artifact{
		Workflow: result.Graph,
		Metadata: models.ArtifactMetadata{
			StrategyUsed:     result.Strategy,
			ComplexityTier:   analysis.Tier,
			ValidationPassed: true,
			Archetype:        string(optimized.Archetype),
			FallbackReason:   result.FallbackReason,
			GeneratedAt:      time.Now().UTC(),
		},
		Costs:    result.Costs,
		Analysis: analysis,
	}

	err = p.store.SaveArtifact(ctx, job.ID, artifact)
	if err != nil {
		otelhelper.StageError(span, "persisting", err)

		return job, p.fail(ctx, job, &models.JobError{
			Kind:    models.ErrorKindInternal,
			Message: fmt.Sprintf("persist artifact: %v", err),
		}, started)
	}

	job.Result = artifact

	err = p.Transition(ctx, job, models.JobStatusCompleted)
	if err != nil {
		otelhelper.SetError(span, err)

		return job, err
	}

	logger.InfoContext(ctx, "Job completed",
		"strategy", result.Strategy,
		"nodes", len(result.Graph.Nodes),
		"duration", time.Since(started))

	p.publish(ctx, job.ID, events.JobCompleted{
		BaseEvent:      p.baseEvent(events.JobCompletedEvent, job.ID),
		StrategyUsed:   result.Strategy,
		ComplexityTier: analysis.Tier,
		NodeCount:      len(result.Graph.Nodes),
		FallbackReason: result.FallbackReason,
		Duration:       time.Since(started),
	})

	return job, nil
}

// Transition moves job to status, raises progress to the stage value and persists it.
// Re-applying the current status is a no-op.
func (p *Processor) Transition(ctx context.Context, job *models.Job, status models.JobStatus) error {
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	progress := max(job.Progress, stageProgress[status])

	if job.Status == status && job.Progress == progress {
		return nil
	}

	job.Status = status
	job.Progress = progress

	err := p.store.SaveJob(ctx, job)
	if err != nil {
		return fmt.Errorf("persist job %s as %s: %w", job.ID, status, err)
	}

	p.logger.DebugContext(ctx, "Job status updated", "job_id", job.ID, "status", status, "progress", progress)

	return nil
}

// enter moves job into stage unless an interrupted run already got further.
// The work of earlier stages is recomputed; only the status stays put.
func (p *Processor) enter(ctx context.Context, job *models.Job, stage models.JobStatus) error {
	if !job.Status.IsTerminal() && job.Status.Rank() > stage.Rank() {
		return nil
	}

	return p.Transition(ctx, job, stage)
}

func (p *Processor) plan(
	ctx context.Context,
	plan *models.OrchestrationPlan,
	business models.BusinessContext,
) (models.ComplexityAnalysis, contextopt.Context) {
	_, span := otelhelper.StartSpan(ctx, p.tracer, "job.planning")
	defer span.End()

	analysis := p.analyzer.Analyze(plan, business)

	return analysis, contextopt.Optimize(plan, analysis)
}

func (p *Processor) generate(ctx context.Context, in generator.Input) (*generator.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "job.generating")
	defer span.End()

	result, err := p.generator.Generate(ctx, in)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.GenerationStrategyKey, string(result.Strategy)),
		attribute.Int(otelhelper.NodeCountKey, len(result.Graph.Nodes)),
	)

	return result, nil
}

func (p *Processor) validate(ctx context.Context, graph *models.WorkflowGraph) models.ValidationResult {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "job.validating")
	defer span.End()

	verdict := p.validator.Validate(ctx, graph)
	span.SetAttributes(attribute.Bool("flowforge.validation.valid", verdict.Valid))

	return verdict
}

// fail records jobErr, moves the job to failed and publishes the failure.
func (p *Processor) fail(ctx context.Context, job *models.Job, jobErr *models.JobError, started time.Time) error {
	job.Error = jobErr

	p.logger.ErrorContext(ctx, "Job failed",
		"job_id", job.ID,
		"kind", jobErr.Kind,
		"error", jobErr.Message,
		"validation_errors", len(jobErr.ValidationErrors))

	err := p.Transition(ctx, job, models.JobStatusFailed)
	if err != nil {
		return err
	}

	p.publish(ctx, job.ID, events.JobFailed{
		BaseEvent:        p.baseEvent(events.JobFailedEvent, job.ID),
		Kind:             jobErr.Kind,
		Error:            jobErr.Message,
		ValidationErrors: jobErr.ValidationErrors,
		Duration:         time.Since(started),
	})

	return nil
}

func (p *Processor) baseEvent(eventType events.EventType, jobID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, jobID)
	base.WorkerID = p.workerID

	return base
}

// publish is best effort: notification delivery never changes a job outcome.
func (p *Processor) publish(ctx context.Context, jobID string, event eventbus.Event) {
	if p.publisher == nil {
		return
	}

	err := p.publisher.Publish(ctx, jobID, event)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish job event", "job_id", jobID, "event_type", event.GetType(), "error", err)
	}
}

func totalCost(records []models.CostRecord) float64 {
	var total float64
	for _, record := range records {
		total += record.Cost
	}

	return total
}
