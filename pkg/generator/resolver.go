package generator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/flowforge/flowforge/pkg/blueprint"
	"github.com/flowforge/flowforge/pkg/discovery"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
)

var errNoRegistryMatch = errors.New("no registry template matches the discovered node kinds")

// discoveryResolver maps plan elements to registry templates confirmed and enriched by the
// discovery service. Any discovery failure aborts the intelligent path.
type discoveryResolver struct {
	registry    *templates.Registry
	service     discovery.Service
	suggestions map[string]map[string]any // AI parameter suggestions keyed by element id
}

func (r *discoveryResolver) Resolve(ctx context.Context, element blueprint.Element) (*blueprint.Resolution, error) {
	template, err := r.pick(ctx, element)
	if err != nil {
		return nil, err
	}

	essentials, err := r.service.GetNodeEssentials(ctx, template.Kind)
	if err != nil {
		return nil, fmt.Errorf("essentials for %s: %w", template.Kind, err)
	}

	if essentials.Kind != template.Kind {
		return nil, fmt.Errorf("%w: essentials for %s describe %s", discovery.ErrIncompleteResult, template.Kind, essentials.Kind)
	}

	enriched := enrich(template, essentials)
	overrides := liveDefaults(template, essentials)

	if suggestion, ok := r.suggestions[element.ID]; ok {
		maps.Copy(overrides, suggestion)
	}

	params, err := enriched.NewParameters(overrides, element.Config)
	if err != nil {
		return nil, err
	}

	verdict, err := r.service.ValidateNodeConfiguration(ctx, enriched.Kind, params)
	if err != nil {
		return nil, fmt.Errorf("validate %s configuration: %w", enriched.Kind, err)
	}

	if !verdict.Valid {
		return nil, fmt.Errorf("discovery rejected %s configuration for %q: %s",
			enriched.Kind, element.ID, strings.Join(verdict.Errors, "; "))
	}

	return &blueprint.Resolution{Template: enriched, Parameters: overrides}, nil
}

// pick prefers the registry's own match for the kind; otherwise the first discovered kind
// that the registry knows.
func (r *discoveryResolver) pick(ctx context.Context, element blueprint.Element) (*templates.Template, error) {
	local, _ := r.registry.Resolve(element.Kind)
	if local != nil && local.IsTrigger() == element.Trigger {
		return local, nil
	}

	query := strings.TrimSpace(element.Kind + " " + element.Name)

	kinds, err := r.service.SearchNodeKinds(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	for _, kind := range kinds {
		if template, ok := r.registry.Get(kind); ok && template.IsTrigger() == element.Trigger {
			return template, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (found %v)", errNoRegistryMatch, element.Kind, kinds)
}

// enrich returns a copy of template with the live version and any extra required parameters.
func enrich(template *templates.Template, essentials *discovery.Essentials) *templates.Template {
	enriched := *template

	if essentials.Version > 0 {
		enriched.Version = essentials.Version
	}

	enriched.RequiredParams = slices.Clone(template.RequiredParams)

	for _, param := range essentials.RequiredParams {
		if !slices.Contains(enriched.RequiredParams, param) {
			enriched.RequiredParams = append(enriched.RequiredParams, param)
		}
	}

	if essentials.Description != "" {
		enriched.Description = essentials.Description
	}

	return &enriched
}

// liveDefaults returns the discovered defaults the registry does not already provide.
func liveDefaults(template *templates.Template, essentials *discovery.Essentials) map[string]any {
	defaults := make(map[string]any)

	for name, value := range essentials.Defaults {
		if _, static := template.Defaults[name]; static || templates.IsEmptyValue(value) || name == models.TerminalParam {
			continue
		}

		defaults[name] = value
	}

	return defaults
}
