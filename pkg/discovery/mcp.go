package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Tool names exposed by the discovery MCP server.
const (
	ToolSearchNodes       = "search_nodes"
	ToolGetNodeEssentials = "get_node_essentials"
	ToolValidateNode      = "validate_node_operation"
)

const (
	defaultCallTimeout   = 10 * time.Second
	defaultRatePerSecond = 5.0
	defaultBurst         = 10
	defaultMaxFailures   = 3
	defaultOpenTimeout   = 30 * time.Second
	defaultSearchLimit   = 5
)

// Config configures the MCP discovery client. Exactly one of URL or Command is used; URL wins.
type Config struct {
	URL           string
	Command       string
	Args          []string
	Env           []string
	CallTimeout   time.Duration
	RatePerSecond float64
	Burst         int
	MaxFailures   uint32
	OpenTimeout   time.Duration
}

// mcpClient is the subset of the mcp-go client used here.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPService implements Service over a Model Context Protocol server.
type MCPService struct {
	client      mcpClient
	breaker     *gobreaker.CircuitBreaker[*mcp.CallToolResult]
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *slog.Logger
}

// Connect starts the transport, performs the MCP handshake and returns a ready service.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*MCPService, error) {
	var (
		client mcpClient
		err    error
	)

	switch {
	case cfg.URL != "":
		httpTransport, tErr := transport.NewStreamableHTTP(cfg.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create discovery http transport: %w", tErr)
		}

		httpClient := mcpclient.NewClient(httpTransport)

		err = httpClient.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: start http client: %w", ErrUnavailable, err)
		}

		client = httpClient
	case cfg.Command != "":
		client, err = mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("%w: create stdio client: %w", ErrUnavailable, err)
		}
	default:
		return nil, errors.New("discovery requires a URL or a command")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "flowforge",
		Version: "1.0.0",
	}

	if initializer, ok := client.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		initCtx, cancel := context.WithTimeout(ctx, callTimeoutOf(cfg))
		defer cancel()

		_, err = initializer.Initialize(initCtx, initReq)
		if err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("%w: initialize: %w", ErrUnavailable, err)
		}
	}

	logger.InfoContext(ctx, "Connected to discovery service", "url", cfg.URL, "command", cfg.Command)

	return newMCPService(client, cfg, logger), nil
}

func newMCPService(client mcpClient, cfg Config, logger *slog.Logger) *MCPService {
	logger = logger.With("module", "discovery")

	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}

	openTimeout := cfg.OpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultOpenTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[*mcp.CallToolResult](gobreaker.Settings{
		Name:        "discovery",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Discovery circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &MCPService{
		client:      client,
		breaker:     breaker,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		callTimeout: callTimeoutOf(cfg),
		logger:      logger,
	}
}

func callTimeoutOf(cfg Config) time.Duration {
	if cfg.CallTimeout <= 0 {
		return defaultCallTimeout
	}

	return cfg.CallTimeout
}

// Ping lists the server tools within the call timeout and checks the discovery tools exist.
func (s *MCPService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	available := make(map[string]bool, len(result.Tools))
	for _, tool := range result.Tools {
		available[tool.Name] = true
	}

	for _, name := range []string{ToolSearchNodes, ToolGetNodeEssentials, ToolValidateNode} {
		if !available[name] {
			return fmt.Errorf("%w: tool %s not offered", ErrIncompleteResult, name)
		}
	}

	return nil
}

// SearchNodeKinds implements Service.
func (s *MCPService) SearchNodeKinds(ctx context.Context, query string) ([]string, error) {
	content, err := s.call(ctx, ToolSearchNodes, map[string]any{"query": query, "limit": defaultSearchLimit})
	if err != nil {
		return nil, err
	}

	var response struct {
		Results []struct {
			NodeType string `json:"nodeType"`
		} `json:"results"`
	}

	err = json.Unmarshal([]byte(content), &response)
	if err != nil {
		return nil, fmt.Errorf("%w: search response: %w", ErrIncompleteResult, err)
	}

	kinds := make([]string, 0, len(response.Results))

	for _, result := range response.Results {
		if result.NodeType != "" {
			kinds = append(kinds, NormalizeKind(result.NodeType))
		}
	}

	return kinds, nil
}

type propertyWire struct {
	Name     string `json:"name"`
	Default  any    `json:"default"`
	Required bool   `json:"required"`
}

type essentialsWire struct {
	NodeType           string         `json:"nodeType"`
	DisplayName        string         `json:"displayName"`
	Description        string         `json:"description"`
	Category           string         `json:"category"`
	Version            any            `json:"version"`
	RequiredProperties []propertyWire `json:"requiredProperties"`
	CommonProperties   []propertyWire `json:"commonProperties"`
}

// GetNodeEssentials implements Service.
func (s *MCPService) GetNodeEssentials(ctx context.Context, kind string) (*Essentials, error) {
	content, err := s.call(ctx, ToolGetNodeEssentials, map[string]any{"nodeType": kind})
	if err != nil {
		return nil, err
	}

	var wire essentialsWire

	err = json.Unmarshal([]byte(content), &wire)
	if err != nil {
		return nil, fmt.Errorf("%w: essentials for %s: %w", ErrIncompleteResult, kind, err)
	}

	if wire.NodeType == "" || wire.DisplayName == "" {
		return nil, fmt.Errorf("%w: essentials for %s lack nodeType or displayName", ErrIncompleteResult, kind)
	}

	essentials := &Essentials{
		Kind:        NormalizeKind(wire.NodeType),
		DisplayName: wire.DisplayName,
		Description: wire.Description,
		Category:    wire.Category,
		Version:     versionOf(wire.Version),
		Defaults:    make(map[string]any),
	}

	for _, property := range wire.RequiredProperties {
		if property.Name == "" {
			return nil, fmt.Errorf("%w: essentials for %s have an unnamed required property", ErrIncompleteResult, kind)
		}

		essentials.RequiredParams = append(essentials.RequiredParams, property.Name)
		if property.Default != nil {
			essentials.Defaults[property.Name] = property.Default
		}
	}

	for _, property := range wire.CommonProperties {
		if property.Name != "" && property.Default != nil {
			essentials.Defaults[property.Name] = property.Default
		}
	}

	return essentials, nil
}

// ValidateNodeConfiguration implements Service.
func (s *MCPService) ValidateNodeConfiguration(ctx context.Context, kind string, params map[string]any) (*Verdict, error) {
	content, err := s.call(ctx, ToolValidateNode, map[string]any{
		"nodeType": kind,
		"config":   params,
		"profile":  "runtime",
	})
	if err != nil {
		return nil, err
	}

	var response struct {
		Valid  *bool `json:"valid"`
		Errors []struct {
			Property string `json:"property"`
			Message  string `json:"message"`
		} `json:"errors"`
	}

	err = json.Unmarshal([]byte(content), &response)
	if err != nil {
		return nil, fmt.Errorf("%w: validation response: %w", ErrIncompleteResult, err)
	}

	if response.Valid == nil {
		return nil, fmt.Errorf("%w: validation response has no verdict", ErrIncompleteResult)
	}

	verdict := &Verdict{Valid: *response.Valid}

	for _, e := range response.Errors {
		if e.Property != "" {
			verdict.Errors = append(verdict.Errors, e.Property+": "+e.Message)
		} else {
			verdict.Errors = append(verdict.Errors, e.Message)
		}
	}

	return verdict, nil
}

// Close shuts the MCP connection down.
func (s *MCPService) Close() error {
	return s.client.Close()
}

// call runs one tool call through the rate limiter and circuit breaker, bounded by the call timeout.
func (s *MCPService) call(ctx context.Context, tool string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	err := s.limiter.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: rate limit wait for %s: %w", ErrUnavailable, tool, err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	s.logger.DebugContext(ctx, "Calling discovery tool", "tool", tool)

	result, err := s.breaker.Execute(func() (*mcp.CallToolResult, error) {
		return s.client.CallTool(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open: %w", ErrUnavailable, err)
		}

		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, tool, err)
	}

	content := extractContent(result)

	if result.IsError {
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, tool, content)
	}

	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s returned no content", ErrIncompleteResult, tool)
	}

	return content, nil
}

func extractContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string

	for _, content := range result.Content {
		switch v := content.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.Join(parts, "\n")
}

func versionOf(v any) int {
	switch typed := v.(type) {
	case float64:
		return int(typed)
	case string:
		if f, err := strconv.ParseFloat(typed, 64); err == nil {
			return int(f)
		}
	case []any:
		// Nodes that support several versions report them all; use the latest.
		latest := 0
		for _, item := range typed {
			latest = max(latest, versionOf(item))
		}

		return latest
	}

	return 0
}
