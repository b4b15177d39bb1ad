package cmd

import (
	"time"

	"github.com/flowforge/flowforge/pkg/cost"
	cli "github.com/urfave/cli/v3"
)

// PipelineFlags are the generation pipeline flags shared by the API, the worker and the CLI.
func PipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "discovery-url",
			Usage:   "URL of the node discovery MCP server (streamable HTTP)",
			Sources: cli.EnvVars("DISCOVERY_URL"),
		},
		&cli.StringFlag{
			Name:    "discovery-command",
			Usage:   "Command that starts the node discovery MCP server over stdio",
			Sources: cli.EnvVars("DISCOVERY_COMMAND"),
		},
		&cli.DurationFlag{
			Name:    "discovery-timeout",
			Usage:   "How long to wait for the discovery service before falling back to blueprints",
			Value:   5 * time.Second,
			Sources: cli.EnvVars("DISCOVERY_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "bedrock-region",
			Usage:   "AWS region for Bedrock completions (AI assistance is disabled when empty)",
			Sources: cli.EnvVars("AWS_REGION"),
		},
		&cli.StringFlag{
			Name:    "economy-model",
			Usage:   "Bedrock model for simple plans",
			Sources: cli.EnvVars("ECONOMY_MODEL"),
		},
		&cli.StringFlag{
			Name:    "premium-model",
			Usage:   "Bedrock model for complex plans",
			Sources: cli.EnvVars("PREMIUM_MODEL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the shared cost record log",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.FloatFlag{
			Name:    "budget-per-call",
			Usage:   "Warn when a single AI call costs more than this many dollars (0 disables)",
			Sources: cli.EnvVars("BUDGET_PER_CALL"),
		},
		&cli.FloatFlag{
			Name:    "budget-per-window",
			Usage:   "Warn when the rolling cost window exceeds this many dollars (0 disables)",
			Sources: cli.EnvVars("BUDGET_PER_WINDOW"),
		},
		&cli.FloatFlag{
			Name:    "complexity-threshold",
			Usage:   "Score at or above which a plan is complex",
			Value:   5.0,
			Sources: cli.EnvVars("COMPLEXITY_THRESHOLD"),
		},
		&cli.StringSliceFlag{
			Name:    "disqualified-archetypes",
			Usage:   "Workflow archetypes that never use AI assistance",
			Sources: cli.EnvVars("DISQUALIFIED_ARCHETYPES"),
		},
	}
}

// CommonFlags are the logging and tracing flags every binary accepts.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// PipelineConfigFrom reads the pipeline flags of command.
func PipelineConfigFrom(command *cli.Command) PipelineConfig {
	return PipelineConfig{
		DiscoveryURL:     command.String("discovery-url"),
		DiscoveryCommand: command.String("discovery-command"),
		DiscoveryTimeout: command.Duration("discovery-timeout"),
		BedrockRegion:    command.String("bedrock-region"),
		EconomyModel:     command.String("economy-model"),
		PremiumModel:     command.String("premium-model"),
		RedisURL:         command.String("redis-url"),
		Budget: cost.Budget{
			PerCall:   command.Float("budget-per-call"),
			PerWindow: command.Float("budget-per-window"),
		},
		ComplexityThreshold:    command.Float("complexity-threshold"),
		DisqualifiedArchetypes: command.StringSlice("disqualified-archetypes"),
	}
}
