// Package events defines event types and structures for generation job lifecycle notifications.
package events

import (
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every job lifecycle event.
const Topic = "flowforge.jobs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	JobSubmittedEvent   EventType = "job.submitted"
	JobCompletedEvent   EventType = "job.completed"
	JobFailedEvent      EventType = "job.failed"
	BudgetExceededEvent EventType = "cost.budget_exceeded"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"job_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// JobSubmitted asks a worker to process a stored pending job.
type JobSubmitted struct {
	BaseEvent

	ProcessDescription string `json:"process_description,omitempty"`
}

func (e JobSubmitted) GetType() EventType {
	return JobSubmittedEvent
}

type JobCompleted struct {
	BaseEvent

	StrategyUsed   models.Strategy       `json:"strategy_used"`
	ComplexityTier models.ComplexityTier `json:"complexity_tier"`
	NodeCount      int                   `json:"node_count"`
	FallbackReason string                `json:"fallback_reason,omitempty"`
	Duration       time.Duration         `json:"duration"`
}

func (e JobCompleted) GetType() EventType {
	return JobCompletedEvent
}

type JobFailed struct {
	BaseEvent

	Kind             models.ErrorKind `json:"kind"`
	Error            string           `json:"error"`
	ValidationErrors []string         `json:"validation_errors,omitempty"`
	Duration         time.Duration    `json:"duration"`
}

func (e JobFailed) GetType() EventType {
	return JobFailedEvent
}

// BudgetExceeded reports cost ceiling warnings raised while processing a job.
type BudgetExceeded struct {
	BaseEvent

	Warnings []string `json:"warnings"`
	Cost     float64  `json:"cost"`
}

func (e BudgetExceeded) GetType() EventType {
	return BudgetExceededEvent
}

// NewBaseEvent creates a base event with a fresh id and timestamp.
func NewBaseEvent(eventType EventType, jobID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
	}
}

func NewJobSubmitted(job *models.Job) JobSubmitted {
	return JobSubmitted{
		BaseEvent:          NewBaseEvent(JobSubmittedEvent, job.ID),
		ProcessDescription: job.Submission.ProcessDescription,
	}
}
