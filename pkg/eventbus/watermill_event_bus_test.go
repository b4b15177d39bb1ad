package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flowforge/flowforge/pkg/channels/gochannel"
	"github.com/flowforge/flowforge/pkg/eventbus"
	"github.com/flowforge/flowforge/pkg/events"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversTypedEvents(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.JobCompleted, 1)

	require.NoError(t, bus.Handle(events.JobCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.JobCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "job-1", events.JobCompleted{
		BaseEvent:      events.NewBaseEvent(events.JobCompletedEvent, "job-1"),
		StrategyUsed:   models.StrategyFallback,
		ComplexityTier: models.ComplexityTierSimple,
		NodeCount:      2,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "job-1", event.JobID)
		assert.Equal(t, models.StrategyFallback, event.StrategyUsed)
		assert.Equal(t, 2, event.NodeCount)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	failed := make(chan *events.JobFailed, 1)

	require.NoError(t, bus.Handle(events.JobFailedEvent, func(_ context.Context, event any) error {
		failed <- event.(*events.JobFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "job-2", events.BudgetExceeded{
		BaseEvent: events.NewBaseEvent(events.BudgetExceededEvent, "job-2"),
		Warnings:  []string{"over budget"},
	}))
	require.NoError(t, bus.Publish(ctx, "job-2", events.JobFailed{
		BaseEvent: events.NewBaseEvent(events.JobFailedEvent, "job-2"),
		Kind:      models.ErrorKindConstruction,
		Error:     "unknown step kind",
	}))

	select {
	case event := <-failed:
		assert.Equal(t, models.ErrorKindConstruction, event.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

func TestWatermillEventBus_DropsMalformedEvents(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	submitted := make(chan *events.JobSubmitted, 2)

	require.NoError(t, bus.Handle(events.JobSubmittedEvent, func(_ context.Context, event any) error {
		submitted <- event.(*events.JobSubmitted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	garbage := message.NewMessage("msg-garbage", []byte("{not json"))
	garbage.Metadata.Set(events.EventTypeMetadataKey, string(events.JobSubmittedEvent))
	require.NoError(t, pub.Publish(events.Topic, garbage))

	require.NoError(t, bus.Publish(ctx, "job-3", events.JobSubmitted{
		BaseEvent: events.NewBaseEvent(events.JobSubmittedEvent, "job-3"),
	}))

	select {
	case event := <-submitted:
		assert.Equal(t, "job-3", event.JobID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid event was not delivered after a malformed one")
	}

	assert.Empty(t, submitted)
}
