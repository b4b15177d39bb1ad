// Package testutil provides test data builders for plans, graphs and jobs.
package testutil

import (
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/google/uuid"
)

// CreateTestPlan creates a webhook-to-HTTP plan that can be overridden.
func CreateTestPlan(overrides ...func(*models.OrchestrationPlan)) *models.OrchestrationPlan {
	plan := &models.OrchestrationPlan{
		Name:        "Lead relay",
		Description: "Forward incoming leads to the CRM API",
		Triggers: []models.TriggerSpec{
			{ID: "trigger", Name: "Incoming Lead", Kind: "webhook"},
		},
		Steps: []models.StepSpec{
			{ID: "forward", Name: "Forward Lead", Kind: "http", Config: map[string]any{"url": "https://crm.example.com/leads"}},
		},
		Edges: []models.PlanEdge{{From: "trigger", To: "forward"}},
	}

	for _, override := range overrides {
		override(plan)
	}

	return plan
}

// WithSteps replaces the plan steps and drops the edges so steps run sequentially.
func WithSteps(steps ...models.StepSpec) func(*models.OrchestrationPlan) {
	return func(p *models.OrchestrationPlan) {
		p.Steps = steps
		p.Edges = nil
	}
}

// WithEdges replaces the plan edges.
func WithEdges(edges ...models.PlanEdge) func(*models.OrchestrationPlan) {
	return func(p *models.OrchestrationPlan) {
		p.Edges = edges
	}
}

// WithTerminalSteps flags the given steps as intentional end points.
func WithTerminalSteps(ids ...string) func(*models.OrchestrationPlan) {
	return func(p *models.OrchestrationPlan) {
		for i := range p.Steps {
			for _, id := range ids {
				if p.Steps[i].ID == id {
					p.Steps[i].Terminal = true
				}
			}
		}
	}
}

// Step is a shorthand for a plan step.
func Step(id, name, kind string) models.StepSpec {
	return models.StepSpec{ID: id, Name: name, Kind: kind}
}

// CreateTestGraph creates a valid Webhook -> HTTP Request graph that can be overridden.
func CreateTestGraph(overrides ...func(*models.WorkflowGraph)) *models.WorkflowGraph {
	graph := &models.WorkflowGraph{
		Name: "Lead relay",
		Nodes: []*models.Node{
			{
				ID:          uuid.New().String(),
				Name:        "Webhook",
				Type:        "n8n-nodes-base.webhook",
				TypeVersion: 2,
				Position:    [2]int{250, 300},
				Parameters:  map[string]any{"path": "lead-relay", "httpMethod": "POST"},
			},
			{
				ID:          uuid.New().String(),
				Name:        "HTTP Request",
				Type:        "n8n-nodes-base.httpRequest",
				TypeVersion: 4,
				Position:    [2]int{500, 300},
				Parameters: map[string]any{
					"url":                "https://crm.example.com/leads",
					"method":             "POST",
					models.TerminalParam: true,
				},
			},
		},
	}
	graph.Connect("Webhook", "HTTP Request")

	for _, override := range overrides {
		override(graph)
	}

	return graph
}

// WithNode appends a node to the graph.
func WithNode(node *models.Node) func(*models.WorkflowGraph) {
	return func(g *models.WorkflowGraph) {
		if node.ID == "" {
			node.ID = uuid.New().String()
		}

		g.Nodes = append(g.Nodes, node)
	}
}

// WithConnection adds a main connection between two display names.
func WithConnection(source, target string) func(*models.WorkflowGraph) {
	return func(g *models.WorkflowGraph) {
		g.Connect(source, target)
	}
}

// WithParameter sets a parameter on the named node.
func WithParameter(nodeName, param string, value any) func(*models.WorkflowGraph) {
	return func(g *models.WorkflowGraph) {
		if node, ok := g.NodeByName(nodeName); ok {
			if node.Parameters == nil {
				node.Parameters = make(map[string]any)
			}

			node.Parameters[param] = value
		}
	}
}

// WithoutParameter removes a parameter from the named node.
func WithoutParameter(nodeName, param string) func(*models.WorkflowGraph) {
	return func(g *models.WorkflowGraph) {
		if node, ok := g.NodeByName(nodeName); ok {
			delete(node.Parameters, param)
		}
	}
}

// CreateTestSubmission creates a submission carrying CreateTestPlan.
func CreateTestSubmission(overrides ...func(*models.JobSubmission)) models.JobSubmission {
	submission := models.JobSubmission{
		ID:                 uuid.New().String(),
		ProcessDescription: "Forward incoming leads to the CRM API",
		BusinessContext:    models.BusinessContext{Industry: "saas", ExpectedVolume: 50},
		Plan:               CreateTestPlan(),
	}

	for _, override := range overrides {
		override(&submission)
	}

	return submission
}

// CreateTestJob creates a pending job for a submission.
func CreateTestJob(submission models.JobSubmission) *models.Job {
	return &models.Job{
		ID:         submission.ID,
		Status:     models.JobStatusPending,
		Submission: submission,
	}
}
