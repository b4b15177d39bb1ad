// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/completion"
	"github.com/flowforge/flowforge/pkg/complexity"
	"github.com/flowforge/flowforge/pkg/contextopt"
	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/flowforge/flowforge/pkg/discovery"
	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/generator"
	"github.com/flowforge/flowforge/pkg/jobs"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

// PipelineConfig collects the flags shared by every binary that runs or inspects the pipeline.
type PipelineConfig struct {
	DiscoveryURL           string
	DiscoveryCommand       string
	DiscoveryTimeout       time.Duration
	BedrockRegion          string
	EconomyModel           string
	PremiumModel           string
	RedisURL               string
	Budget                 cost.Budget
	ComplexityThreshold    float64
	DisqualifiedArchetypes []string
}

// Pipeline holds the long-lived components of the generation pipeline.
type Pipeline struct {
	Registry  *templates.Registry
	Assembler *blueprint.Assembler
	Validator *validator.Validator
	Analyzer  *complexity.Analyzer
	Monitor   *cost.Monitor
	CostSink  *cost.RedisSink
	Discovery discovery.Service
	Completer completion.Completer
	Generator *generator.Generator

	costConfig cost.Config
	logger     *slog.Logger
}

// NewPipeline builds the pipeline. Discovery, Bedrock and Redis are optional: a component whose
// flag is empty is left out and generation falls back to blueprint assembly.
func NewPipeline(ctx context.Context, cfg PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	disqualified, err := parseArchetypes(cfg.DisqualifiedArchetypes)
	if err != nil {
		return nil, err
	}

	registry, err := templates.NewDefaultRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load template catalog: %w", err)
	}

	p := &Pipeline{
		Registry:  registry,
		Assembler: blueprint.NewAssembler(registry, logger),
		Validator: validator.New(registry, logger),
		Analyzer:  complexity.NewAnalyzer(cfg.ComplexityThreshold),
		logger:    logger,
	}

	p.costConfig = cost.Config{Budget: cfg.Budget}

	if cfg.RedisURL != "" {
		sink, err := cost.NewRedisSink(ctx, cfg.RedisURL, cost.DefaultRedisKey, logger)
		if err != nil {
			return nil, err
		}

		p.CostSink = sink
		p.costConfig.Sink = sink
	}

	p.Monitor = cost.NewMonitor(p.costConfig, logger)

	options := []generator.Option{
		generator.WithCostMonitor(p.Monitor),
		generator.WithConfig(generator.Config{
			DiscoveryTimeout:       cfg.DiscoveryTimeout,
			DisqualifiedArchetypes: disqualified,
		}),
	}

	if cfg.DiscoveryURL != "" || cfg.DiscoveryCommand != "" {
		fields := strings.Fields(cfg.DiscoveryCommand)

		discoveryConfig := discovery.Config{URL: cfg.DiscoveryURL}
		if len(fields) > 0 {
			discoveryConfig.Command = fields[0]
			discoveryConfig.Args = fields[1:]
		}

		// Connects on first use, so a server that is down at startup is picked up once it answers.
		service := discovery.Lazy(discoveryConfig, logger)
		p.Discovery = service
		options = append(options, generator.WithDiscovery(service))
	}

	if cfg.BedrockRegion != "" {
		completer, err := completion.NewBedrockCompleter(ctx, completion.BedrockConfig{
			Region:       cfg.BedrockRegion,
			EconomyModel: cfg.EconomyModel,
			PremiumModel: cfg.PremiumModel,
		}, logger)
		if err != nil {
			return nil, err
		}

		p.Completer = completer
		options = append(options, generator.WithCompleter(completer))
	}

	p.Generator = generator.New(p.Assembler, registry, logger, options...)

	return p, nil
}

// Processor creates a job processor over store. A nil publisher disables job events.
func (p *Pipeline) Processor(store persistence.Persistence, publisher eventbus.EventPublisher, tracer trace.Tracer, workerID string) *jobs.Processor {
	opts := []jobs.Option{jobs.WithWorkerID(workerID)}

	if publisher != nil {
		opts = append(opts, jobs.WithEventPublisher(publisher))
	}

	if tracer != nil {
		opts = append(opts, jobs.WithTracer(tracer))
	}

	return jobs.NewProcessor(store, p.Analyzer, p.Generator, p.Validator, p.logger, opts...)
}

// CostConfig returns the monitor configuration, for services that rebuild summaries from the sink.
func (p *Pipeline) CostConfig() cost.Config {
	return p.costConfig
}

// RestoreCosts seeds the monitor with the most recent records of the shared sink.
func (p *Pipeline) RestoreCosts(ctx context.Context) error {
	if p.CostSink == nil {
		return nil
	}

	records, err := p.CostSink.Load(ctx, cost.DefaultCapacity)
	if err != nil {
		return err
	}

	p.Monitor.Restore(records)
	p.logger.InfoContext(ctx, "Restored cost records", "count", len(records))

	return nil
}

// Close releases the discovery connection and the cost sink.
func (p *Pipeline) Close() error {
	var errs []error

	if closer, ok := p.Discovery.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}

	if p.CostSink != nil {
		errs = append(errs, p.CostSink.Close())
	}

	return errors.Join(errs...)
}

func parseArchetypes(names []string) ([]contextopt.Archetype, error) {
	archetypes := make([]contextopt.Archetype, 0, len(names))

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}

		archetype, err := contextopt.ParseArchetype(name)
		if err != nil {
			return nil, fmt.Errorf("invalid disqualified archetype: %w", err)
		}

		archetypes = append(archetypes, archetype)
	}

	return archetypes, nil
}
