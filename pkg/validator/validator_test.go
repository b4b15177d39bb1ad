package validator

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := templates.NewDefaultRegistry(logger)
	require.NoError(t, err)

	return New(registry, logger)
}

func containsError(errs []string, fragment string) bool {
	for _, err := range errs {
		if strings.Contains(err, fragment) {
			return true
		}
	}

	return false
}

func TestValidate_ValidGraph(t *testing.T) {
	v := newTestValidator(t)

	result := v.Validate(t.Context(), testutil.CreateTestGraph())

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NoError(t, AsError(result))
}

func TestValidate_NilGraph(t *testing.T) {
	v := newTestValidator(t)

	result := v.Validate(t.Context(), nil)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{"structural: workflow graph is missing"}, result.Errors)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name     string
		graph    *models.WorkflowGraph
		expected string
	}{
		{
			name: "missing name",
			graph: testutil.CreateTestGraph(func(g *models.WorkflowGraph) {
				g.Name = ""
			}),
			expected: `structural: field Name failed the "required" rule`,
		},
		{
			name: "no nodes",
			graph: &models.WorkflowGraph{
				Name:        "empty",
				Connections: map[string][]models.ConnectionTarget{},
			},
			expected: "structural: field Nodes",
		},
		{
			name: "wrong port",
			graph: testutil.CreateTestGraph(func(g *models.WorkflowGraph) {
				g.Connections["Webhook"][0].Port = "ai_tool"
			}),
			expected: `uses port "ai_tool", expected "main"`,
		},
		{
			name: "unknown node kind",
			graph: testutil.CreateTestGraph(testutil.WithNode(&models.Node{
				Name: "Mystery", Type: "n8n-nodes-base.mystery", TypeVersion: 1,
				Parameters: map[string]any{models.TerminalParam: true},
			}), testutil.WithConnection("Webhook", "Mystery")),
			expected: `node "Mystery": unknown node kind "n8n-nodes-base.mystery"`,
		},
		{
			name:     "missing required parameter",
			graph:    testutil.CreateTestGraph(testutil.WithoutParameter("HTTP Request", "url")),
			expected: `node "HTTP Request": required parameter "url" is missing or empty`,
		},
		{
			name:     "schema violation",
			graph:    testutil.CreateTestGraph(testutil.WithParameter("HTTP Request", "method", "FETCH")),
			expected: `node "HTTP Request": parameter method`,
		},
		{
			name: "duplicate display names",
			graph: testutil.CreateTestGraph(testutil.WithNode(&models.Node{
				Name: "HTTP Request", Type: templates.KindNoOp, TypeVersion: 1,
			})),
			expected: `node "HTTP Request": display name is shared by 2 nodes`,
		},
		{
			name:     "dangling connection target with hint",
			graph:    testutil.CreateTestGraph(testutil.WithConnection("HTTP Request", "done")),
			expected: `connection from "HTTP Request" targets unknown node "done"`,
		},
		{
			name:     "connection source mismatch",
			graph:    testutil.CreateTestGraph(testutil.WithConnection("webhook", "HTTP Request")),
			expected: `connection source "webhook" does not match any node display name (did you mean "Webhook"?)`,
		},
		{
			name:     "risky terminal without marker",
			graph:    testutil.CreateTestGraph(testutil.WithoutParameter("HTTP Request", models.TerminalParam)),
			expected: `node "HTTP Request" (n8n-nodes-base.httpRequest): risky terminal node has no outgoing connection`,
		},
		{
			name: "unreachable action",
			graph: testutil.CreateTestGraph(testutil.WithNode(&models.Node{
				Name: "Orphan", Type: "n8n-nodes-base.set", TypeVersion: 3,
			})),
			expected: `node "Orphan": non-trigger node has no incoming connection`,
		},
		{
			name: "cycle",
			graph: testutil.CreateTestGraph(
				testutil.WithNode(&models.Node{Name: "Loop", Type: "n8n-nodes-base.set", TypeVersion: 3}),
				testutil.WithConnection("HTTP Request", "Loop"),
				testutil.WithConnection("Loop", "HTTP Request"),
			),
			expected: `connections form a cycle: HTTP Request -> Loop -> HTTP Request`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t)

			result := v.Validate(t.Context(), tt.graph)

			assert.False(t, result.Valid)
			assert.True(t, containsError(result.Errors, tt.expected), "expected %q in %v", tt.expected, result.Errors)
		})
	}
}

func TestValidate_AccumulatesAcrossPasses(t *testing.T) {
	v := newTestValidator(t)

	graph := testutil.CreateTestGraph(
		testutil.WithoutParameter("HTTP Request", "url"),
		testutil.WithoutParameter("HTTP Request", models.TerminalParam),
		testutil.WithConnection("HTTP Request", "Nowhere"),
	)

	result := v.Validate(t.Context(), graph)

	assert.False(t, result.Valid)
	assert.True(t, containsError(result.Errors, `required parameter "url"`))
	assert.True(t, containsError(result.Errors, `targets unknown node "Nowhere"`))
}

func TestValidate_TerminalMarkerAsString(t *testing.T) {
	v := newTestValidator(t)

	graph := testutil.CreateTestGraph(testutil.WithParameter("HTTP Request", models.TerminalParam, "true"))

	assert.True(t, v.Validate(t.Context(), graph).Valid)
}

func TestValidate_SafeLeafNeedsNoMarker(t *testing.T) {
	v := newTestValidator(t)

	graph := testutil.CreateTestGraph(
		testutil.WithNode(&models.Node{
			Name: "Format", Type: "n8n-nodes-base.set", TypeVersion: 3,
			Parameters: map[string]any{"mode": "manual"},
		}),
		testutil.WithConnection("HTTP Request", "Format"),
	)

	result := v.Validate(t.Context(), graph)
	assert.True(t, result.Valid, result.Errors)
}

func TestAsError(t *testing.T) {
	err := AsError(models.ValidationResult{Valid: false, Errors: []string{"a", "b"}})

	require.Error(t, err)
	assert.True(t, IsValidationFailed(err))
	assert.Equal(t, "workflow graph failed validation with 2 error(s): a; b", err.Error())

	assert.False(t, IsValidationFailed(assert.AnError))
}
