// Package generator chooses between discovery-assisted generation and deterministic assembly.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/completion"
	"github.com/flowforge/flowforge/pkg/contextopt"
	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/flowforge/flowforge/pkg/discovery"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/validator"
)

const (
	defaultDiscoveryTimeout   = 5 * time.Second
	defaultIntelligentTimeout = 60 * time.Second
	suggestionMaxTokens       = 2048
)

// Config tunes strategy selection.
type Config struct {
	// DiscoveryTimeout bounds the reachability probe.
	DiscoveryTimeout time.Duration
	// IntelligentTimeout bounds the whole intelligent attempt.
	IntelligentTimeout time.Duration
	// DisqualifiedArchetypes never use AI assistance.
	DisqualifiedArchetypes []contextopt.Archetype
}

// Input is everything the generator needs for one plan.
type Input struct {
	JobID    string
	Plan     *models.OrchestrationPlan
	Analysis models.ComplexityAnalysis
	Context  contextopt.Context
}

// Result is the tagged outcome of generation: exactly one strategy produced Graph.
type Result struct {
	Strategy       models.Strategy
	Graph          *models.WorkflowGraph
	FallbackReason string
	Costs          []models.CostRecord
	BudgetWarnings []string
}

// Option configures a Generator.
type Option func(*Generator)

// WithDiscovery enables the intelligent strategy.
func WithDiscovery(service discovery.Service) Option {
	return func(g *Generator) {
		g.discovery = service
	}
}

// WithCompleter lets the intelligent strategy ask the AI service for node parameters.
func WithCompleter(completer completion.Completer) Option {
	return func(g *Generator) {
		g.completer = completer
	}
}

// WithCostMonitor records the usage of every AI call.
func WithCostMonitor(monitor *cost.Monitor) Option {
	return func(g *Generator) {
		g.costs = monitor
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(g *Generator) {
		g.cfg = cfg
	}
}

// modelChooser is implemented by completers that can name the model serving a tier.
type modelChooser interface {
	ModelFor(tier models.GenerationTier) string
}

// Generator implements the two-step intelligent-then-fallback pipeline.
type Generator struct {
	assembler *blueprint.Assembler
	registry  *templates.Registry
	checker   *validator.Validator
	discovery discovery.Service
	completer completion.Completer
	costs     *cost.Monitor
	cfg       Config
	logger    *slog.Logger
}

// New creates a generator. Without WithDiscovery every plan takes the fallback strategy.
func New(assembler *blueprint.Assembler, registry *templates.Registry, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		assembler: assembler,
		registry:  registry,
		checker:   validator.New(registry, logger),
		logger:    logger.With("module", "hybrid_generator"),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.cfg.DiscoveryTimeout <= 0 {
		g.cfg.DiscoveryTimeout = defaultDiscoveryTimeout
	}

	if g.cfg.IntelligentTimeout <= 0 {
		g.cfg.IntelligentTimeout = defaultIntelligentTimeout
	}

	return g
}

// Generate returns a graph from the intelligent strategy when eligible and successful, and from
// the blueprint assembler otherwise. Only an assembler failure is returned as an error.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	if in.Plan == nil {
		return nil, fmt.Errorf("generate: %w", blueprint.ErrEmptyPlan)
	}

	result := &Result{}

	reason := g.ineligibility(ctx, in)
	if reason == "" {
		graph, err := g.intelligent(ctx, in, result)
		if err == nil {
			result.Strategy = models.StrategyIntelligent
			result.Graph = graph
			g.annotate(result, in)

			g.logger.InfoContext(ctx, "Generated workflow with discovery assistance",
				"job_id", in.JobID, "strategy", result.Strategy, "nodes", len(graph.Nodes))

			return result, nil
		}

		reason = err.Error()
	}

	g.logger.WarnContext(ctx, "Using blueprint fallback", "job_id", in.JobID, "reason", reason)

	graph, err := g.assembler.Assemble(ctx, in.Plan)
	if err != nil {
		return nil, err
	}

	result.Strategy = models.StrategyFallback
	result.Graph = graph
	result.FallbackReason = reason
	g.annotate(result, in)

	return result, nil
}

// ineligibility returns why the intelligent strategy cannot run, or "" when it can.
func (g *Generator) ineligibility(ctx context.Context, in Input) string {
	if g.discovery == nil {
		return "discovery service not configured"
	}

	if slices.Contains(g.cfg.DisqualifiedArchetypes, in.Context.Archetype) {
		return fmt.Sprintf("archetype %s is disqualified from AI assistance", in.Context.Archetype)
	}

	if in.Context.Archetype == contextopt.ArchetypeWebhookRelay && in.Analysis.Tier == models.ComplexityTierSimple {
		return "simple webhook relays are assembled deterministically"
	}

	pingCtx, cancel := context.WithTimeout(ctx, g.cfg.DiscoveryTimeout)
	defer cancel()

	err := g.discovery.Ping(pingCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("discovery service did not answer within %s", g.cfg.DiscoveryTimeout)
		}

		return fmt.Sprintf("discovery service unreachable: %v", err)
	}

	return ""
}

func (g *Generator) intelligent(ctx context.Context, in Input, result *Result) (*models.WorkflowGraph, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.IntelligentTimeout)
	defer cancel()

	var suggestions map[string]map[string]any

	if g.completer != nil {
		var err error

		suggestions, err = g.suggestParameters(ctx, in, result)
		if err != nil {
			return nil, fmt.Errorf("parameter suggestions: %w", err)
		}
	}

	resolver := &discoveryResolver{
		registry:    g.registry,
		service:     g.discovery,
		suggestions: suggestions,
	}

	graph, err := g.assembler.AssembleWith(ctx, in.Plan, resolver)
	if err != nil {
		return nil, fmt.Errorf("discovery-assisted assembly: %w", err)
	}

	// Suggested and live parameters are only trusted once the registry rules accept them.
	verdict := g.checker.Validate(ctx, graph)
	if !verdict.Valid {
		return nil, fmt.Errorf("discovery-assisted graph rejected locally: %s", strings.Join(verdict.Errors, "; "))
	}

	return graph, nil
}

type suggestionResponse struct {
	Nodes map[string]map[string]any `json:"nodes"`
}

// suggestParameters asks the completion service for node parameters in one call.
func (g *Generator) suggestParameters(ctx context.Context, in Input, result *Result) (map[string]map[string]any, error) {
	req := completion.Request{
		System:    suggestionSystemPrompt,
		Prompt:    buildSuggestionPrompt(in, contextopt.SelectDocs(g.registry, in.Context)),
		Tier:      in.Analysis.RecommendedTier,
		MaxTokens: suggestionMaxTokens,
	}

	g.checkEstimate(ctx, in, req)

	resp, err := g.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	g.recordCost(ctx, in, req, resp, result)

	var parsed suggestionResponse

	err = completion.DecodeJSON(resp.Text, &parsed)
	if err != nil {
		return nil, err
	}

	if parsed.Nodes == nil {
		return nil, fmt.Errorf("%w: missing \"nodes\" object", completion.ErrMalformedJSON)
	}

	for _, params := range parsed.Nodes {
		delete(params, models.TerminalParam)
	}

	return parsed.Nodes, nil
}

// checkEstimate prices the prompt before the call and logs the budget warnings it would raise.
// Budgets never block the call.
func (g *Generator) checkEstimate(ctx context.Context, in Input, req completion.Request) {
	chooser, ok := g.completer.(modelChooser)
	if g.costs == nil || !ok {
		return
	}

	model := chooser.ModelFor(req.Tier)

	estimated, inputTokens, err := g.costs.EstimateRecord(model, req.System+"\n"+req.Prompt, req.MaxTokens)
	if err != nil {
		g.logger.DebugContext(ctx, "Could not estimate completion cost", "job_id", in.JobID, "model", model, "error", err)

		return
	}

	hypothetical := models.CostRecord{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: req.MaxTokens,
		Cost:         estimated,
		Tier:         in.Analysis.Tier,
		JobID:        in.JobID,
	}

	for _, warning := range g.costs.CheckBudget(hypothetical) {
		g.logger.WarnContext(ctx, "Completion may exceed budget",
			"job_id", in.JobID, "model", model, "estimated_cost", estimated, "warning", warning)
	}
}

func (g *Generator) recordCost(ctx context.Context, in Input, req completion.Request, resp *completion.Response, result *Result) {
	if g.costs == nil {
		return
	}

	inputTokens, outputTokens := resp.InputTokens, resp.OutputTokens

	// Some providers omit usage; bill the estimate rather than nothing.
	if inputTokens == 0 && outputTokens == 0 {
		inputTokens = cost.EstimateTokens(req.System + "\n" + req.Prompt)
		outputTokens = cost.EstimateTokens(resp.Text)
	}

	record, err := g.costs.NewRecord(resp.Model, inputTokens, outputTokens, in.Analysis.Tier)
	if err != nil {
		g.logger.WarnContext(ctx, "Could not price completion", "job_id", in.JobID, "error", err)

		return
	}

	record.JobID = in.JobID
	record.NodeCount = len(in.Plan.Triggers) + len(in.Plan.Steps)

	result.Costs = append(result.Costs, record)
	result.BudgetWarnings = append(result.BudgetWarnings, g.costs.Record(ctx, record)...)
}

func (g *Generator) annotate(result *Result, in Input) {
	result.Graph.Meta = &models.GraphMeta{
		StrategyUsed:   result.Strategy,
		Archetype:      string(in.Context.Archetype),
		FallbackReason: result.FallbackReason,
	}
}

const suggestionSystemPrompt = `You configure nodes of an automation workflow.
Reply with one JSON object of the form {"nodes": {"<step id>": {"<parameter>": <value>}}}.
Only use parameters described in the documentation. Omit steps you cannot improve.`

func buildSuggestionPrompt(in Input, docs []contextopt.Doc) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s\n", in.Plan.Name)

	if in.Plan.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Plan.Description)
	}

	fmt.Fprintf(&b, "Archetype: %s\n\nNode documentation:\n", in.Context.Archetype)

	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s: %s\n", doc.Kind, doc.Text)
	}

	b.WriteString("\nSteps:\n")

	for _, step := range in.Plan.Steps {
		fmt.Fprintf(&b, "- id=%s kind=%s name=%q", step.ID, step.Kind, step.Name)

		if step.Description != "" {
			fmt.Fprintf(&b, " description=%q", step.Description)
		}

		b.WriteByte('\n')
	}

	return b.String()
}
