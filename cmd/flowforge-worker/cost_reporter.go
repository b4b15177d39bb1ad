package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/cost"
	"github.com/robfig/cron/v3"
)

// CostReporter periodically logs the cost summary and optimization recommendations of a monitor.
type CostReporter struct {
	schedule string
	monitor  *cost.Monitor
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewCostReporter(schedule string, monitor *cost.Monitor, logger *slog.Logger) (*CostReporter, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cost report schedule '%s': %w", schedule, err)
	}

	return &CostReporter{
		schedule: schedule,
		monitor:  monitor,
		logger:   logger.With("module", "cost_reporter"),
	}, nil
}

func (r *CostReporter) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := r.cron.AddFunc(r.schedule, func() { r.Report(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cost report job: %w", err)
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Cost reporter started", "schedule", r.schedule, "entry_id", entryID)

	return nil
}

func (r *CostReporter) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Report logs one summary line and one line per recommendation.
func (r *CostReporter) Report(ctx context.Context) []string {
	summary := r.monitor.Summary()

	r.logger.InfoContext(ctx, "Cost summary",
		"calls", summary.Calls,
		"total_cost", summary.TotalCost,
		"input_tokens", summary.InputTokens,
		"output_tokens", summary.OutputTokens,
		"budget_per_window", summary.Budget.PerWindow,
	)

	recommendations := r.monitor.Recommendations()
	for _, recommendation := range recommendations {
		r.logger.WarnContext(ctx, "Cost optimization recommendation", "recommendation", recommendation)
	}

	return recommendations
}
