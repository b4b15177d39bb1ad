package blueprint

import (
	"context"
	"errors"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
)

// Element is a trigger or step of a plan, flattened for node resolution.
type Element struct {
	ID          string
	Name        string
	Kind        string
	Description string
	Config      map[string]any
	Terminal    bool
	Trigger     bool
}

// Resolution is the template chosen for an element plus parameters to layer over its defaults.
type Resolution struct {
	Template   *templates.Template
	Parameters map[string]any
	Generic    bool // Generic HTTP fallback for an unknown kind
}

// NodeResolver maps plan elements to node templates.
type NodeResolver interface {
	Resolve(ctx context.Context, element Element) (*Resolution, error)
}

// RegistryResolver resolves elements against the static template registry only.
type RegistryResolver struct {
	registry             *templates.Registry
	allowGenericFallback bool
}

// NewRegistryResolver creates a resolver over the registry.
func NewRegistryResolver(registry *templates.Registry, allowGenericFallback bool) *RegistryResolver {
	return &RegistryResolver{
		registry:             registry,
		allowGenericFallback: allowGenericFallback,
	}
}

// Resolve implements NodeResolver.
func (r *RegistryResolver) Resolve(_ context.Context, element Element) (*Resolution, error) {
	template, err := r.registry.Resolve(element.Kind)
	if err != nil && !errors.Is(err, templates.ErrTemplateNotFound) {
		return nil, err
	}

	if element.Trigger {
		if template == nil || !template.IsTrigger() {
			template, _ = r.registry.Get(templates.KindWebhook)
		}

		if template == nil {
			return nil, newConstructionError(element.ID, element.Kind, ErrUnknownStepKind, "no webhook trigger template registered")
		}

		return &Resolution{Template: template}, nil
	}

	if template != nil && !template.IsTrigger() {
		return &Resolution{Template: template}, nil
	}

	if !r.allowGenericFallback {
		return nil, newConstructionError(element.ID, element.Kind, ErrUnknownStepKind, "generic fallback disabled")
	}

	fallback, ok := r.registry.Fallback()
	if !ok {
		return nil, newConstructionError(element.ID, element.Kind, ErrUnknownStepKind, "no generic HTTP template registered")
	}

	return &Resolution{Template: fallback, Generic: true}, nil
}

func elementsOf(plan *models.OrchestrationPlan) []Element {
	elements := make([]Element, 0, len(plan.Triggers)+len(plan.Steps))

	for _, trigger := range plan.Triggers {
		elements = append(elements, Element{
			ID:          trigger.ID,
			Name:        trigger.Name,
			Kind:        trigger.Kind,
			Description: trigger.Description,
			Config:      trigger.Config,
			Trigger:     true,
		})
	}

	for _, step := range plan.Steps {
		elements = append(elements, Element{
			ID:          step.ID,
			Name:        step.Name,
			Kind:        step.Kind,
			Description: step.Description,
			Config:      step.Config,
			Terminal:    step.Terminal,
		})
	}

	return elements
}
