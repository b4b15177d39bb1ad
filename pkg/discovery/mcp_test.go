package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	tools   []string
	listErr error
	results map[string]*mcp.CallToolResult
	callErr error
	calls   []mcp.CallToolRequest
	block   bool
	closed  bool
}

func (f *fakeClient) ListTools(ctx context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	if f.listErr != nil {
		return nil, f.listErr
	}

	result := &mcp.ListToolsResult{}
	for _, name := range f.tools {
		result.Tools = append(result.Tools, mcp.Tool{Name: name})
	}

	return result, nil
}

func (f *fakeClient) CallTool(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, request)

	if f.callErr != nil {
		return nil, f.callErr
	}

	return f.results[request.Params.Name], nil
}

func (f *fakeClient) Close() error {
	f.closed = true

	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}

func newTestService(client *fakeClient, cfg Config) *MCPService {
	return newMCPService(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func allTools() []string {
	return []string{ToolSearchNodes, ToolGetNodeEssentials, ToolValidateNode}
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, "n8n-nodes-base.slack", NormalizeKind("nodes-base.slack"))
	assert.Equal(t, "@n8n/n8n-nodes-langchain.openAi", NormalizeKind(" nodes-langchain.openAi "))
	assert.Equal(t, "n8n-nodes-base.slack", NormalizeKind("n8n-nodes-base.slack"))
}

func TestPing(t *testing.T) {
	service := newTestService(&fakeClient{tools: allTools()}, Config{})
	assert.NoError(t, service.Ping(t.Context()))
}

func TestPing_MissingTool(t *testing.T) {
	service := newTestService(&fakeClient{tools: []string{ToolSearchNodes}}, Config{})

	err := service.Ping(t.Context())
	assert.ErrorIs(t, err, ErrIncompleteResult)
	assert.Contains(t, err.Error(), ToolGetNodeEssentials)
}

func TestPing_Unreachable(t *testing.T) {
	service := newTestService(&fakeClient{listErr: errors.New("connection refused")}, Config{})

	assert.ErrorIs(t, service.Ping(t.Context()), ErrUnavailable)
}

func TestPing_Timeout(t *testing.T) {
	service := newTestService(&fakeClient{block: true}, Config{CallTimeout: 10 * time.Millisecond})

	err := service.Ping(t.Context())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchNodeKinds(t *testing.T) {
	client := &fakeClient{results: map[string]*mcp.CallToolResult{
		ToolSearchNodes: textResult(`{"results":[{"nodeType":"nodes-base.slack"},{"nodeType":""},{"nodeType":"nodes-base.telegram"}]}`),
	}}
	service := newTestService(client, Config{})

	kinds, err := service.SearchNodeKinds(t.Context(), "chat notification")
	require.NoError(t, err)
	assert.Equal(t, []string{"n8n-nodes-base.slack", "n8n-nodes-base.telegram"}, kinds)

	require.Len(t, client.calls, 1)
	assert.Equal(t, ToolSearchNodes, client.calls[0].Params.Name)
	assert.Equal(t, map[string]any{"query": "chat notification", "limit": defaultSearchLimit}, client.calls[0].Params.Arguments)
}

func TestGetNodeEssentials(t *testing.T) {
	client := &fakeClient{results: map[string]*mcp.CallToolResult{
		ToolGetNodeEssentials: textResult(`{
			"nodeType": "nodes-base.slack",
			"displayName": "Slack",
			"category": "output",
			"version": [1, 2, "2.2"],
			"requiredProperties": [{"name": "channel", "required": true}, {"name": "text", "default": "hi", "required": true}],
			"commonProperties": [{"name": "resource", "default": "message"}, {"name": "unset"}]
		}`),
	}}
	service := newTestService(client, Config{})

	essentials, err := service.GetNodeEssentials(t.Context(), "n8n-nodes-base.slack")
	require.NoError(t, err)

	assert.Equal(t, "n8n-nodes-base.slack", essentials.Kind)
	assert.Equal(t, "Slack", essentials.DisplayName)
	assert.Equal(t, 2, essentials.Version)
	assert.Equal(t, []string{"channel", "text"}, essentials.RequiredParams)
	assert.Equal(t, map[string]any{"text": "hi", "resource": "message"}, essentials.Defaults)
}

func TestGetNodeEssentials_Incomplete(t *testing.T) {
	tests := map[string]string{
		"not json":              `essentials unavailable`,
		"missing display name":  `{"nodeType":"nodes-base.slack"}`,
		"unnamed required prop": `{"nodeType":"nodes-base.slack","displayName":"Slack","requiredProperties":[{"required":true}]}`,
		"empty content":         `   `,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			service := newTestService(&fakeClient{results: map[string]*mcp.CallToolResult{
				ToolGetNodeEssentials: textResult(payload),
			}}, Config{})

			_, err := service.GetNodeEssentials(t.Context(), "n8n-nodes-base.slack")
			assert.ErrorIs(t, err, ErrIncompleteResult)
		})
	}
}

func TestValidateNodeConfiguration(t *testing.T) {
	client := &fakeClient{results: map[string]*mcp.CallToolResult{
		ToolValidateNode: textResult(`{"valid":false,"errors":[{"property":"channel","message":"is required"},{"message":"credentials missing"}]}`),
	}}
	service := newTestService(client, Config{})

	verdict, err := service.ValidateNodeConfiguration(t.Context(), "n8n-nodes-base.slack", map[string]any{"text": "hi"})
	require.NoError(t, err)

	assert.False(t, verdict.Valid)
	assert.Equal(t, []string{"channel: is required", "credentials missing"}, verdict.Errors)
	assert.Equal(t, "runtime", client.calls[0].Params.Arguments.(map[string]any)["profile"])
}

func TestValidateNodeConfiguration_NoVerdict(t *testing.T) {
	service := newTestService(&fakeClient{results: map[string]*mcp.CallToolResult{
		ToolValidateNode: textResult(`{"errors":[]}`),
	}}, Config{})

	_, err := service.ValidateNodeConfiguration(t.Context(), "n8n-nodes-base.slack", nil)
	assert.ErrorIs(t, err, ErrIncompleteResult)
}

func TestCall_ToolError(t *testing.T) {
	result := textResult("unknown node type")
	result.IsError = true

	service := newTestService(&fakeClient{results: map[string]*mcp.CallToolResult{ToolGetNodeEssentials: result}}, Config{})

	_, err := service.GetNodeEssentials(t.Context(), "nodes-base.bogus")
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestCall_CircuitBreakerOpens(t *testing.T) {
	client := &fakeClient{callErr: errors.New("boom")}
	service := newTestService(client, Config{MaxFailures: 2, OpenTimeout: time.Minute})

	for range 2 {
		_, err := service.SearchNodeKinds(t.Context(), "x")
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	_, err := service.SearchNodeKinds(t.Context(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Len(t, client.calls, 2)
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	require.NoError(t, newTestService(client, Config{}).Close())
	assert.True(t, client.closed)
}

func TestConnect_RequiresTarget(t *testing.T) {
	_, err := Connect(t.Context(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestVersionOf(t *testing.T) {
	assert.Equal(t, 3, versionOf(3.0))
	assert.Equal(t, 4, versionOf("4.1"))
	assert.Equal(t, 0, versionOf(nil))
	assert.Equal(t, 0, versionOf("latest"))
}
