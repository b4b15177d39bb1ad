package main

import (
	"context"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/jobs"
)

type WorkerManager struct {
	id        string
	logger    *slog.Logger
	processor *jobs.Processor
	eventBus  eventbus.EventBus
	reporter  *CostReporter
}

func NewWorkerManager(
	id string,
	processor *jobs.Processor,
	eventBus eventbus.EventBus,
	reporter *CostReporter,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:        id,
		logger:    logger.With("module", "flowforge-worker", "worker_id", id),
		processor: processor,
		eventBus:  eventBus,
		reporter:  reporter,
	}
}

// Start subscribes to job submissions and blocks until ctx is cancelled.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.JobSubmittedEvent, w.processor.HandleSubmitted)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.reporter != nil {
		if err := w.reporter.Start(ctx); err != nil {
			return err
		}

		defer w.reporter.Stop()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}
