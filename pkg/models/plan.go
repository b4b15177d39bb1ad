package models

import (
	"fmt"
	"strings"
)

// TriggerSpec describes how a planned workflow is started.
type TriggerSpec struct {
	ID          string         `json:"id"                    validate:"required"  yaml:"id"`
	Name        string         `json:"name"                  yaml:"name"`
	Kind        string         `json:"kind"                  validate:"required"  yaml:"kind"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"      yaml:"config,omitempty"`
}

// StepSpec describes one planned unit of work.
type StepSpec struct {
	ID          string         `json:"id"                    validate:"required"  yaml:"id"`
	Name        string         `json:"name"                  yaml:"name"`
	Kind        string         `json:"kind"                  validate:"required"  yaml:"kind"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"      yaml:"config,omitempty"`
	Terminal    bool           `json:"terminal,omitempty"    yaml:"terminal,omitempty"`
}

// PlanEdge references two triggers or steps by id.
type PlanEdge struct {
	From string `json:"from" validate:"required" yaml:"from"`
	To   string `json:"to"   validate:"required" yaml:"to"`
}

// OrchestrationPlan is the abstract automation plan produced upstream of the pipeline.
type OrchestrationPlan struct {
	Name         string        `json:"name"                   validate:"required"      yaml:"name"`
	Description  string        `json:"description"            yaml:"description"`
	Triggers     []TriggerSpec `json:"triggers"               validate:"dive"          yaml:"triggers"`
	Steps        []StepSpec    `json:"steps"                  validate:"dive"          yaml:"steps"`
	Edges        []PlanEdge    `json:"edges,omitempty"        validate:"dive"          yaml:"edges,omitempty"`
	Integrations []string      `json:"integrations,omitempty" yaml:"integrations,omitempty"`
}

// StepByID returns the step with the given id.
func (p *OrchestrationPlan) StepByID(id string) (StepSpec, bool) {
	for _, step := range p.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return StepSpec{}, false
}

// Kinds returns every trigger and step kind in declaration order.
func (p *OrchestrationPlan) Kinds() []string {
	kinds := make([]string, 0, len(p.Triggers)+len(p.Steps))
	for _, trigger := range p.Triggers {
		kinds = append(kinds, trigger.Kind)
	}

	for _, step := range p.Steps {
		kinds = append(kinds, step.Kind)
	}

	return kinds
}

// Text concatenates every free-text field of the plan, lower-cased, for keyword matching.
func (p *OrchestrationPlan) Text() string {
	var b strings.Builder

	b.WriteString(strings.ToLower(p.Name))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(p.Description))

	for _, trigger := range p.Triggers {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(trigger.Name + " " + trigger.Description))
	}

	for _, step := range p.Steps {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(step.Name + " " + step.Description))
	}

	return b.String()
}

// BusinessContext carries the organization metadata attached to a job.
type BusinessContext struct {
	Industry        string   `json:"industry,omitempty"`
	ExpectedVolume  int      `json:"expectedVolume,omitempty"` // Messages or records per day
	ComplexityHints []string `json:"complexityHints,omitempty"`
}

// AutomationOpportunity is one automation candidate identified in a process description.
type AutomationOpportunity struct {
	Title        string   `json:"title"                  validate:"required"`
	Description  string   `json:"description,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Integrations []string `json:"integrations,omitempty"`
}

// PlanFromOpportunities builds a sequential plan with a webhook trigger from automation opportunities.
func PlanFromOpportunities(name, description string, opportunities []AutomationOpportunity) *OrchestrationPlan {
	plan := &OrchestrationPlan{
		Name:        name,
		Description: description,
		Triggers: []TriggerSpec{{
			ID:   "trigger",
			Name: "Incoming Request",
			Kind: "webhook",
		}},
	}

	seen := make(map[string]bool)
	previous := "trigger"

	for i, opportunity := range opportunities {
		kind := opportunity.Kind
		if kind == "" {
			kind = "http"
		}

		id := fmt.Sprintf("step-%d", i+1)
		plan.Steps = append(plan.Steps, StepSpec{
			ID:          id,
			Name:        opportunity.Title,
			Kind:        kind,
			Description: opportunity.Description,
			Terminal:    i == len(opportunities)-1,
		})
		plan.Edges = append(plan.Edges, PlanEdge{From: previous, To: id})
		previous = id

		for _, integration := range opportunity.Integrations {
			key := strings.ToLower(integration)
			if !seen[key] {
				seen[key] = true

				plan.Integrations = append(plan.Integrations, integration)
			}
		}
	}

	return plan
}
