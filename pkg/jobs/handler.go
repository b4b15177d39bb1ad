package jobs

import (
	"context"

	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// HandleSubmitted is an eventbus.EventHandler for job.submitted events.
// Unknown jobs are acknowledged and dropped; storage errors are returned so the message is redelivered.
func (p *Processor) HandleSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.JobSubmitted)
	if !ok {
		p.logger.ErrorContext(ctx, "Invalid event type for JobSubmitted")

		return nil
	}

	logger := p.logger.With("job_id", submitted.JobID, "event_id", submitted.ID)
	logger.InfoContext(ctx, "Processing job submitted event")

	job, err := p.Process(ctx, submitted.JobID)
	if err != nil {
		if persistence.IsJobNotFound(err) {
			logger.WarnContext(ctx, "Submitted job does not exist, dropping event")

			return nil
		}

		logger.ErrorContext(ctx, "Failed to process job", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Job processed", "status", job.Status, "progress", job.Progress)

	return nil
}
