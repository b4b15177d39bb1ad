// Package validator checks finished workflow graphs against structural, referential and policy rules.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
	playground "github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationFailedError carries every defect found in a graph.
type ValidationFailedError struct {
	Errors []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("workflow graph failed validation with %d error(s): %s",
		len(e.Errors), strings.Join(e.Errors, "; "))
}

// AsError returns nil for a valid result and a *ValidationFailedError otherwise.
func AsError(result models.ValidationResult) error {
	if result.Valid {
		return nil
	}

	return &ValidationFailedError{Errors: slices.Clone(result.Errors)}
}

// IsValidationFailed reports whether err carries a validation verdict.
func IsValidationFailed(err error) bool {
	var failed *ValidationFailedError

	return errors.As(err, &failed)
}

// Validator runs independent passes over a graph and accumulates their errors.
type Validator struct {
	registry *templates.Registry
	validate *playground.Validate
	logger   *slog.Logger
}

// New creates a validator that resolves node kinds against registry.
func New(registry *templates.Registry, logger *slog.Logger) *Validator {
	return &Validator{
		registry: registry,
		validate: playground.New(playground.WithRequiredStructEnabled()),
		logger:   logger.With("module", "validator"),
	}
}

type pass func(graph *models.WorkflowGraph) []string

// Validate returns the verdict for graph. Every pass runs even when an earlier one failed.
func (v *Validator) Validate(ctx context.Context, graph *models.WorkflowGraph) models.ValidationResult {
	if graph == nil {
		return models.ValidationResult{Valid: false, Errors: []string{"structural: workflow graph is missing"}}
	}

	passes := []pass{
		v.checkStructure,
		v.checkNodes,
		v.checkReferences,
		v.checkTerminals,
		v.checkTopology,
	}

	errs := make([]string, 0)
	for _, p := range passes {
		errs = append(errs, p(graph)...)
	}

	result := models.ValidationResult{Valid: len(errs) == 0, Errors: errs}

	if !result.Valid {
		v.logger.DebugContext(ctx, "Workflow graph failed validation",
			"workflow", graph.Name, "errors", len(errs))
	}

	return result
}

// checkStructure verifies the graph shape: name, node list and connection map.
func (v *Validator) checkStructure(graph *models.WorkflowGraph) []string {
	var errs []string

	err := v.validate.Struct(graph)
	if err != nil {
		var fieldErrs playground.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []string{"structural: " + err.Error()}
		}

		for _, fieldErr := range fieldErrs {
			errs = append(errs, fmt.Sprintf("structural: field %s failed the %q rule",
				strings.TrimPrefix(fieldErr.Namespace(), "WorkflowGraph."), fieldErr.Tag()))
		}
	}

	for _, source := range sortedSources(graph) {
		for i, target := range graph.Connections[source] {
			if target.Node == "" {
				errs = append(errs, fmt.Sprintf("structural: connection %d from %q has no target node", i, source))
			}

			if target.Port != models.PortMain {
				errs = append(errs, fmt.Sprintf("structural: connection from %q to %q uses port %q, expected %q",
					source, target.Node, target.Port, models.PortMain))
			}

			if target.Index < 0 {
				errs = append(errs, fmt.Sprintf("structural: connection from %q to %q has negative input index %d",
					source, target.Node, target.Index))
			}
		}
	}

	return errs
}

// checkNodes verifies each node's kind is known and its parameters are complete.
func (v *Validator) checkNodes(graph *models.WorkflowGraph) []string {
	var errs []string

	for _, node := range graph.Nodes {
		if node == nil {
			continue
		}

		template, ok := v.registry.Get(node.Type)
		if !ok {
			errs = append(errs, fmt.Sprintf("node %q: unknown node kind %q", node.Name, node.Type))

			continue
		}

		for _, param := range template.MissingParams(node.Parameters) {
			errs = append(errs, fmt.Sprintf("node %q: required parameter %q is missing or empty", node.Name, param))
		}

		errs = append(errs, checkSchema(node, template)...)
	}

	return errs
}

func checkSchema(node *models.Node, template *templates.Template) []string {
	if len(template.Schema) == 0 {
		return nil
	}

	params := node.Parameters
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(template.Schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return []string{fmt.Sprintf("node %q: parameter schema for %q could not be evaluated: %v", node.Name, node.Type, err)}
	}

	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("node %q: parameter %s", node.Name, desc.String()))
	}

	return errs
}

// checkReferences verifies display names and ids are unique and every connection names a real node.
func (v *Validator) checkReferences(graph *models.WorkflowGraph) []string {
	var errs []string

	names := make(map[string]int)
	ids := make(map[string]int)

	for _, node := range graph.Nodes {
		if node == nil {
			continue
		}

		names[node.Name]++
		if node.ID != "" {
			ids[node.ID]++
		}
	}

	for _, node := range graph.Nodes {
		if node == nil {
			continue
		}

		if names[node.Name] > 1 {
			errs = append(errs, fmt.Sprintf("node %q: display name is shared by %d nodes; names must be unique connection keys",
				node.Name, names[node.Name]))
			names[node.Name] = -1
		}

		if ids[node.ID] > 1 {
			errs = append(errs, fmt.Sprintf("node %q: id %q is shared by %d nodes", node.Name, node.ID, ids[node.ID]))
			ids[node.ID] = -1
		}
	}

	for _, source := range sortedSources(graph) {
		if _, ok := graph.NodeByName(source); !ok {
			errs = append(errs, fmt.Sprintf("connection source %q does not match any node display name%s",
				source, closestName(graph, source)))
		}

		for _, target := range graph.Connections[source] {
			if target.Node == "" {
				continue
			}

			if _, ok := graph.NodeByName(target.Node); !ok {
				errs = append(errs, fmt.Sprintf("connection from %q targets unknown node %q%s",
					source, target.Node, closestName(graph, target.Node)))
			}
		}
	}

	return errs
}

// checkTerminals flags risky nodes that end a branch without an explicit terminal marker.
func (v *Validator) checkTerminals(graph *models.WorkflowGraph) []string {
	var errs []string

	for _, node := range graph.Nodes {
		if node == nil || !v.registry.IsRiskyTerminal(node.Type) {
			continue
		}

		if len(graph.Connections[node.Name]) > 0 || node.IsTerminal() {
			continue
		}

		errs = append(errs, fmt.Sprintf(
			"node %q (%s): risky terminal node has no outgoing connection and no %s: true marker",
			node.Name, node.Type, models.TerminalParam))
	}

	return errs
}

// checkTopology verifies main data flow is acyclic and every non-trigger node is reachable.
func (v *Validator) checkTopology(graph *models.WorkflowGraph) []string {
	var errs []string

	incoming := make(map[string]int)

	for _, targets := range graph.Connections {
		for _, target := range targets {
			incoming[target.Node]++
		}
	}

	for _, node := range graph.Nodes {
		if node == nil {
			continue
		}

		template, ok := v.registry.Get(node.Type)
		if !ok || template.IsTrigger() {
			continue
		}

		if incoming[node.Name] == 0 {
			errs = append(errs, fmt.Sprintf("node %q: non-trigger node has no incoming connection", node.Name))
		}
	}

	if cycle := findCycle(graph); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("connections form a cycle: %s", strings.Join(cycle, " -> ")))
	}

	return errs
}

// findCycle returns the node names along the first cycle found, closed by repeating its start.
func findCycle(graph *models.WorkflowGraph) []string {
	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int)
	stack := make([]string, 0)

	var visit func(name string) []string

	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)

		for _, target := range graph.Connections[name] {
			switch state[target.Node] {
			case visiting:
				start := slices.Index(stack, target.Node)
				cycle := slices.Clone(stack[start:])

				return append(cycle, target.Node)
			case unvisited:
				if cycle := visit(target.Node); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = visited

		return nil
	}

	for _, source := range sortedSources(graph) {
		if state[source] != unvisited {
			continue
		}

		if cycle := visit(source); cycle != nil {
			return cycle
		}
	}

	return nil
}

func sortedSources(graph *models.WorkflowGraph) []string {
	sources := make([]string, 0, len(graph.Connections))
	for source := range graph.Connections {
		sources = append(sources, source)
	}

	sort.Strings(sources)

	return sources
}

func closestName(graph *models.WorkflowGraph, name string) string {
	for _, node := range graph.Nodes {
		if node != nil && strings.EqualFold(node.Name, name) {
			return fmt.Sprintf(" (did you mean %q?)", node.Name)
		}
	}

	return ""
}
