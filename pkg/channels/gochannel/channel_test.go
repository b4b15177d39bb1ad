package gochannel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChannel_SharesPubSub(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{}, WithBuffer(4))
	require.NoError(t, err)

	defer func() { _ = pub.Close() }()

	assert.Same(t, pub, sub)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	messages, err := sub.Subscribe(ctx, "flowforge.jobs")
	require.NoError(t, err)

	require.NoError(t, pub.Publish("flowforge.jobs", message.NewMessage("job-1", []byte(`{"job_id":"job-1"}`))))

	select {
	case msg := <-messages:
		assert.Equal(t, "job-1", msg.UUID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("job event not delivered")
	}
}

func TestCreateChannel_BlockingPublish(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{}, WithBlockingPublish())
	require.NoError(t, err)

	defer func() { _ = pub.Close() }()

	messages, err := sub.Subscribe(t.Context(), "flowforge.jobs")
	require.NoError(t, err)

	acked := make(chan struct{})

	go func() {
		msg := <-messages
		msg.Ack()
		close(acked)
	}()

	require.NoError(t, pub.Publish("flowforge.jobs", message.NewMessage("job-2", nil)))

	select {
	case <-acked:
	case <-time.After(5 * time.Second):
		t.Fatal("publish returned without a subscriber ack")
	}
}
