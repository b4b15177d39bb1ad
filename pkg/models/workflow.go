// Package models defines the core domain models for plan-to-workflow generation
package models

import "time"

// Strategy names the generation path that produced a workflow graph.
type Strategy string

const (
	StrategyIntelligent Strategy = "intelligent" // Discovery-assisted generation
	StrategyFallback    Strategy = "fallback"    // Deterministic blueprint assembly
)

// WorkflowGraph is the engine-executable node/connection structure produced by the pipeline.
type WorkflowGraph struct {
	Name        string                        `json:"name"        validate:"required"`
	Nodes       []*Node                       `json:"nodes"       validate:"required,min=1,dive,required"`
	Connections map[string][]ConnectionTarget `json:"connections" validate:"required"`
	Settings    map[string]any                `json:"settings,omitempty"`
	Meta        *GraphMeta                    `json:"meta,omitempty"`
}

// GraphMeta records how a graph was produced.
type GraphMeta struct {
	StrategyUsed   Strategy `json:"strategyUsed"`
	Archetype      string   `json:"archetype,omitempty"`
	FallbackReason string   `json:"fallbackReason,omitempty"`
}

// NodeByName returns the first node with the given display name.
func (g *WorkflowGraph) NodeByName(name string) (*Node, bool) {
	for _, node := range g.Nodes {
		if node != nil && node.Name == name {
			return node, true
		}
	}

	return nil, false
}

// Connect appends a main-port connection from source to target, keyed by display name.
func (g *WorkflowGraph) Connect(source, target string) {
	g.ConnectAt(source, target, 0)
}

// ConnectAt appends a main-port connection into the given input index of target.
// Connecting the same pair twice is a no-op.
func (g *WorkflowGraph) ConnectAt(source, target string, index int) {
	if g.Connections == nil {
		g.Connections = make(map[string][]ConnectionTarget)
	}

	for _, existing := range g.Connections[source] {
		if existing.Node == target && existing.Port == PortMain && existing.Index == index {
			return
		}
	}

	g.Connections[source] = append(g.Connections[source], ConnectionTarget{
		Node:  target,
		Port:  PortMain,
		Index: index,
	})
}

// Artifact is the persisted result of a completed job.
type Artifact struct {
	Workflow *WorkflowGraph     `json:"workflow"`
	Metadata ArtifactMetadata   `json:"metadata"`
	Costs    []CostRecord       `json:"costs,omitempty"`
	Analysis ComplexityAnalysis `json:"analysis"`
}

// ArtifactMetadata is the generation metadata stored next to a workflow graph.
type ArtifactMetadata struct {
	StrategyUsed     Strategy       `json:"strategyUsed"`
	ComplexityTier   ComplexityTier `json:"complexityTier"`
	ValidationPassed bool           `json:"validationPassed"`
	Archetype        string         `json:"archetype,omitempty"`
	FallbackReason   string         `json:"fallbackReason,omitempty"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}
