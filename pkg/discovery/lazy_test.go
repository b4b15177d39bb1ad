package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDialer refuses its first dials, then hands out services over clients in order.
type flakyDialer struct {
	failures int
	clients  []*fakeClient
	dials    atomic.Int32
}

func (d *flakyDialer) dial(context.Context) (Service, error) {
	n := int(d.dials.Add(1))
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}

	client := d.clients[min(n-d.failures, len(d.clients))-1]

	return newTestService(client, Config{}), nil
}

func TestLazyService_ConnectsAfterStartupFailure(t *testing.T) {
	dialer := &flakyDialer{failures: 1, clients: []*fakeClient{{tools: allTools()}}}
	service := NewLazyService(dialer.dial, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := service.Ping(t.Context())
	require.ErrorIs(t, err, ErrUnavailable)

	// breaker is open: no second dial inside the retry window
	err = service.Ping(t.Context())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), dialer.dials.Load())

	assert.Eventually(t, func() bool {
		return service.Ping(t.Context()) == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), dialer.dials.Load())

	require.NoError(t, service.Ping(t.Context()))
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestLazyService_RedialsLostConnection(t *testing.T) {
	dead := &fakeClient{listErr: errors.New("broken pipe")}
	healthy := &fakeClient{tools: allTools(), results: map[string]*mcp.CallToolResult{
		ToolSearchNodes: textResult(`{"results":[{"nodeType":"nodes-base.slack"}]}`),
	}}

	dialer := &flakyDialer{clients: []*fakeClient{dead, healthy}}
	service := NewLazyService(dialer.dial, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := service.Ping(t.Context())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, dead.closed)

	require.NoError(t, service.Ping(t.Context()))

	kinds, err := service.SearchNodeKinds(t.Context(), "slack")
	require.NoError(t, err)
	assert.Equal(t, []string{"n8n-nodes-base.slack"}, kinds)
	assert.Equal(t, int32(2), dialer.dials.Load())

	require.NoError(t, service.Close())
	assert.True(t, healthy.closed)
}

func TestLazyService_IncompleteServerKeepsConnection(t *testing.T) {
	partial := &fakeClient{tools: []string{ToolSearchNodes}}
	dialer := &flakyDialer{clients: []*fakeClient{partial}}
	service := NewLazyService(dialer.dial, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := service.Ping(t.Context())
	require.ErrorIs(t, err, ErrIncompleteResult)
	assert.False(t, partial.closed)

	_ = service.Ping(t.Context())
	assert.Equal(t, int32(1), dialer.dials.Load())
}
