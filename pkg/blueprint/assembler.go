// Package blueprint builds workflow graphs from orchestration plans without any AI call.
package blueprint

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/templates"
	"github.com/google/uuid"
)

const (
	closingNodeName = "Done"
	mergeNodeName   = "Merge Branches"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Option configures an Assembler.
type Option func(*Assembler)

// WithoutGenericFallback makes unknown step kinds a construction error instead of an HTTP call.
func WithoutGenericFallback() Option {
	return func(a *Assembler) {
		a.allowGenericFallback = false
	}
}

// Assembler deterministically turns orchestration plans into workflow graphs.
type Assembler struct {
	registry             *templates.Registry
	logger               *slog.Logger
	allowGenericFallback bool
}

// NewAssembler creates an assembler over the template registry.
func NewAssembler(registry *templates.Registry, logger *slog.Logger, opts ...Option) *Assembler {
	assembler := &Assembler{
		registry:             registry,
		logger:               logger.With("module", "blueprint_assembler"),
		allowGenericFallback: true,
	}

	for _, opt := range opts {
		opt(assembler)
	}

	return assembler
}

// Assemble builds a graph resolving every element against the registry.
func (a *Assembler) Assemble(ctx context.Context, plan *models.OrchestrationPlan) (*models.WorkflowGraph, error) {
	return a.AssembleWith(ctx, plan, NewRegistryResolver(a.registry, a.allowGenericFallback))
}

// AssembleWith builds a graph using resolver to pick each node's template.
// Either a complete graph or a *ConstructionError is returned, never a partial graph.
func (a *Assembler) AssembleWith(ctx context.Context, plan *models.OrchestrationPlan, resolver NodeResolver) (*models.WorkflowGraph, error) {
	if plan == nil || (len(plan.Triggers) == 0 && len(plan.Steps) == 0) {
		return nil, newConstructionError("", "", ErrEmptyPlan, "")
	}

	plan = withDefaultTrigger(plan)
	elements := elementsOf(plan)

	topo, err := buildTopology(plan, elements)
	if err != nil {
		return nil, err
	}

	builder := newGraphBuilder(plan, a.registry)

	for _, element := range elements {
		resolution, err := resolver.Resolve(ctx, element)
		if err != nil {
			if IsConstructionError(err) {
				return nil, err
			}

			return nil, newConstructionError(element.ID, element.Kind, ErrUnknownStepKind, err.Error())
		}

		if resolution == nil || resolution.Template == nil {
			return nil, newConstructionError(element.ID, element.Kind, ErrUnknownStepKind, "resolver returned no template")
		}

		if resolution.Generic {
			a.logger.DebugContext(ctx, "Using generic HTTP node for unknown step kind",
				"element_id", element.ID, "kind", element.Kind)
		}

		err = builder.addElement(element, resolution)
		if err != nil {
			return nil, err
		}
	}

	err = builder.connect(topo)
	if err != nil {
		return nil, err
	}

	err = builder.closeLeaves()
	if err != nil {
		return nil, err
	}

	layout(builder.graph)

	a.logger.DebugContext(ctx, "Assembled workflow graph",
		"workflow", plan.Name,
		"nodes", len(builder.graph.Nodes),
		"pattern", topo.Pattern())

	return builder.graph, nil
}

// withDefaultTrigger returns plan unchanged, or a copy with a webhook trigger when it has only steps.
func withDefaultTrigger(plan *models.OrchestrationPlan) *models.OrchestrationPlan {
	if len(plan.Triggers) > 0 {
		return plan
	}

	copied := *plan
	copied.Triggers = []models.TriggerSpec{{
		ID:   "trigger",
		Name: "Webhook",
		Kind: templates.KindWebhook,
	}}

	for _, step := range plan.Steps {
		if step.ID == "trigger" {
			copied.Triggers[0].ID = "synthesized-trigger"
		}
	}

	return &copied
}

type graphBuilder struct {
	plan      *models.OrchestrationPlan
	registry  *templates.Registry
	graph     *models.WorkflowGraph
	byElement map[string]*models.Node
	templates map[string]*templates.Template // keyed by node name
	terminal  map[string]bool                // keyed by node name
	names     map[string]bool
}

func newGraphBuilder(plan *models.OrchestrationPlan, registry *templates.Registry) *graphBuilder {
	return &graphBuilder{
		plan:     plan,
		registry: registry,
		graph: &models.WorkflowGraph{
			Name:        plan.Name,
			Nodes:       make([]*models.Node, 0, len(plan.Triggers)+len(plan.Steps)),
			Connections: make(map[string][]models.ConnectionTarget),
			Settings:    map[string]any{"executionOrder": "v1"},
		},
		byElement: make(map[string]*models.Node),
		templates: make(map[string]*templates.Template),
		terminal:  make(map[string]bool),
		names:     make(map[string]bool),
	}
}

func (b *graphBuilder) addElement(element Element, resolution *Resolution) error {
	template := resolution.Template

	params, err := template.NewParameters(resolution.Parameters, element.Config)
	if err != nil {
		return newConstructionError(element.ID, element.Kind, ErrMissingParameter, err.Error())
	}

	if template.Kind == templates.KindWebhook && templates.IsEmptyValue(params["path"]) {
		params["path"] = slug(b.plan.Name) + "-" + slug(element.ID)
	}

	if element.Terminal {
		params[models.TerminalParam] = true
	}

	if missing := template.MissingParams(params); len(missing) > 0 {
		return newConstructionError(element.ID, element.Kind, ErrMissingParameter, strings.Join(missing, ", "))
	}

	name := element.Name
	if name == "" {
		name = template.DisplayName
	}

	node := b.addNode("element/"+element.ID, name, template, params)
	b.byElement[element.ID] = node
	b.terminal[node.Name] = element.Terminal

	return nil
}

func (b *graphBuilder) addNode(key, name string, template *templates.Template, params map[string]any) *models.Node {
	if params == nil {
		params = make(map[string]any)
	}

	node := &models.Node{
		ID:          nodeID(b.plan.Name, key),
		Name:        b.uniqueName(name),
		Type:        template.Kind,
		TypeVersion: max(template.Version, 1),
		Parameters:  params,
	}

	b.graph.Nodes = append(b.graph.Nodes, node)
	b.templates[node.Name] = template

	return node
}

// addFromRegistry adds a control node (merge, closing noOp) that has no plan element.
func (b *graphBuilder) addFromRegistry(key, kind, name string) (*models.Node, error) {
	template, ok := b.registry.Get(kind)
	if !ok {
		return nil, newConstructionError("", kind, ErrUnknownStepKind, "control node template not registered")
	}

	params, err := template.NewParameters()
	if err != nil {
		return nil, newConstructionError("", kind, ErrMissingParameter, err.Error())
	}

	return b.addNode(key, name, template, params), nil
}

// connect translates element edges into node connections. Targets fed by two or more
// non-trigger branches receive them through a merge node that waits for every input.
func (b *graphBuilder) connect(topo *topology) error {
	for _, id := range topo.order {
		preds := topo.predecessors[id]
		if len(preds) == 0 {
			continue
		}

		target := b.byElement[id]
		branches := topo.branchPredecessors(id)

		for _, pred := range preds {
			if topo.triggers[pred] || len(branches) < 2 {
				b.graph.Connect(b.byElement[pred].Name, target.Name)
			}
		}

		if len(branches) < 2 {
			continue
		}

		merge := target
		if b.templates[target.Name].Kind != templates.KindMerge {
			var err error

			merge, err = b.addFromRegistry("merge/"+id, templates.KindMerge, mergeNodeName)
			if err != nil {
				return err
			}

			b.graph.Connect(merge.Name, target.Name)
		}

		merge.Parameters["numberInputs"] = len(branches)

		for i, pred := range branches {
			b.graph.ConnectAt(b.byElement[pred].Name, merge.Name, i)
		}
	}

	return nil
}

// closeLeaves marks every dangling node terminal, except risky ones the plan did not flag:
// those are routed into a closing no-op so no outbound call ends a branch silently.
func (b *graphBuilder) closeLeaves() error {
	leaves := make([]*models.Node, 0)

	for _, node := range b.graph.Nodes {
		if len(b.graph.Connections[node.Name]) == 0 {
			leaves = append(leaves, node)
		}
	}

	var closing *models.Node

	for _, node := range leaves {
		if b.terminal[node.Name] || !b.templates[node.Name].RiskyTerminal {
			node.Parameters[models.TerminalParam] = true

			continue
		}

		if closing == nil {
			var err error

			closing, err = b.addFromRegistry("closing", templates.KindNoOp, closingNodeName)
			if err != nil {
				return err
			}

			closing.Parameters[models.TerminalParam] = true
		}

		b.graph.Connect(node.Name, closing.Name)
	}

	return nil
}

func (b *graphBuilder) uniqueName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Node"
	}

	candidate := name
	for i := 2; b.names[candidate]; i++ {
		candidate = fmt.Sprintf("%s %d", name, i)
	}

	b.names[candidate] = true

	return candidate
}

func nodeID(planName, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("flowforge:"+planName+"/"+key)).String()
}

func slug(s string) string {
	s = slugPattern.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")

	if s == "" {
		return "workflow"
	}

	return s
}
