// Package eventbus provides event-driven communication between the API, workers and notification consumers.
package eventbus

import (
	"context"

	"github.com/flowforge/flowforge/pkg/events"
)

// Event is any job lifecycle event that can travel on the bus.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes job events. key is the job id, so a partitioned
// transport keeps the events of one job in order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches decoded events to the handler registered for their type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.JobSubmitted.
// A returned error nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
