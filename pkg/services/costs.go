package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/flowforge/flowforge/pkg/models"
)

// CostLoader reads cost records written by other processes, such as cost.RedisSink.
type CostLoader interface {
	Load(ctx context.Context, limit int64) ([]models.CostRecord, error)
}

// CostReport is the cost summary exposed by the API.
type CostReport struct {
	Summary         cost.Summary `json:"summary"`
	Recommendations []string     `json:"recommendations"`
}

// Costs reports the spend recorded by the generation pipeline.
type Costs struct {
	config cost.Config
	local  *cost.Monitor
	loader CostLoader
	logger *slog.Logger
}

// NewCosts creates a cost service. When loader is set every report is rebuilt from the shared
// records it returns; otherwise the report covers the local monitor only.
func NewCosts(config cost.Config, local *cost.Monitor, loader CostLoader, logger *slog.Logger) *Costs {
	if config.Capacity <= 0 {
		config.Capacity = cost.DefaultCapacity
	}

	return &Costs{
		config: config,
		local:  local,
		loader: loader,
		logger: logger.With("module", "cost_service"),
	}
}

// Report summarizes the cost window and lists optimization recommendations for every logged workflow shape.
func (c *Costs) Report(ctx context.Context) (*CostReport, error) {
	monitor, err := c.monitor(ctx)
	if err != nil {
		return nil, err
	}

	return &CostReport{
		Summary:         monitor.Summary(),
		Recommendations: monitor.Recommendations(),
	}, nil
}

func (c *Costs) monitor(ctx context.Context) (*cost.Monitor, error) {
	if c.loader == nil {
		if c.local == nil {
			return cost.NewMonitor(c.config, c.logger), nil
		}

		return c.local, nil
	}

	records, err := c.loader.Load(ctx, int64(c.config.Capacity))
	if err != nil {
		return nil, fmt.Errorf("failed to load cost records: %w", err)
	}

	restoreConfig := c.config
	restoreConfig.Sink = nil

	monitor := cost.NewMonitor(restoreConfig, c.logger)
	monitor.Restore(records)

	return monitor, nil
}
