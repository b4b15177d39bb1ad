package blueprint

import (
	"fmt"

	"github.com/flowforge/flowforge/pkg/models"
)

// Pattern names the connection shape of an assembled plan.
type Pattern string

const (
	PatternSequential        Pattern = "sequential"
	PatternParallelWithMerge Pattern = "parallel-with-merge"
)

// topology is the validated element-level edge set of a plan.
type topology struct {
	order        []string
	triggers     map[string]bool
	successors   map[string][]string
	predecessors map[string][]string
}

// Pattern reports whether the plan fans out or fans in anywhere.
func (t *topology) Pattern() Pattern {
	for _, id := range t.order {
		if len(t.successors[id]) > 1 || len(t.branchPredecessors(id)) > 1 {
			return PatternParallelWithMerge
		}
	}

	return PatternSequential
}

func (t *topology) branchPredecessors(id string) []string {
	var preds []string

	for _, pred := range t.predecessors[id] {
		if !t.triggers[pred] {
			preds = append(preds, pred)
		}
	}

	return preds
}

func (t *topology) addEdge(from, to string) {
	for _, existing := range t.successors[from] {
		if existing == to {
			return
		}
	}

	t.successors[from] = append(t.successors[from], to)
	t.predecessors[to] = append(t.predecessors[to], from)
}

// buildTopology derives the edge set for the elements. Without explicit edges the plan is
// sequential: every trigger feeds the first step and each step feeds the next. Steps that no
// edge reaches are attached to the first trigger.
func buildTopology(plan *models.OrchestrationPlan, elements []Element) (*topology, error) {
	topo := &topology{
		order:        make([]string, 0, len(elements)),
		triggers:     make(map[string]bool),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}

	known := make(map[string]bool, len(elements))

	for _, element := range elements {
		if element.ID == "" {
			return nil, newConstructionError("", element.Kind, ErrDuplicateElement, "element without id")
		}

		if known[element.ID] {
			return nil, newConstructionError(element.ID, element.Kind, ErrDuplicateElement, "")
		}

		known[element.ID] = true
		topo.order = append(topo.order, element.ID)

		if element.Trigger {
			topo.triggers[element.ID] = true
		}
	}

	edges := plan.Edges
	if len(edges) == 0 {
		edges = sequentialEdges(elements)
	}

	for _, edge := range edges {
		if !known[edge.From] {
			return nil, newConstructionError(edge.From, "", ErrUnknownEdgeEndpoint, fmt.Sprintf("edge %s -> %s", edge.From, edge.To))
		}

		if !known[edge.To] {
			return nil, newConstructionError(edge.To, "", ErrUnknownEdgeEndpoint, fmt.Sprintf("edge %s -> %s", edge.From, edge.To))
		}

		if topo.triggers[edge.To] {
			return nil, newConstructionError(edge.To, "", ErrEdgeIntoTrigger, fmt.Sprintf("edge %s -> %s", edge.From, edge.To))
		}

		topo.addEdge(edge.From, edge.To)
	}

	firstTrigger := ""
	if len(plan.Triggers) > 0 {
		firstTrigger = plan.Triggers[0].ID
	}

	for _, element := range elements {
		if element.Trigger || len(topo.predecessors[element.ID]) > 0 || firstTrigger == "" {
			continue
		}

		topo.addEdge(firstTrigger, element.ID)
	}

	if cycle := findCycle(topo); cycle != "" {
		return nil, newConstructionError(cycle, "", ErrCyclicPlan, "")
	}

	return topo, nil
}

func sequentialEdges(elements []Element) []models.PlanEdge {
	var (
		edges    []models.PlanEdge
		triggers []string
		previous string
	)

	for _, element := range elements {
		if element.Trigger {
			triggers = append(triggers, element.ID)

			continue
		}

		if previous == "" {
			for _, trigger := range triggers {
				edges = append(edges, models.PlanEdge{From: trigger, To: element.ID})
			}
		} else {
			edges = append(edges, models.PlanEdge{From: previous, To: element.ID})
		}

		previous = element.ID
	}

	return edges
}

// findCycle returns an element id on a cycle, or "" when the edges are acyclic.
func findCycle(topo *topology) string {
	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(topo.order))

	var visit func(id string) string

	visit = func(id string) string {
		state[id] = visiting

		for _, next := range topo.successors[id] {
			switch state[next] {
			case visiting:
				return next
			case unvisited:
				if found := visit(next); found != "" {
					return found
				}
			}
		}

		state[id] = visited

		return ""
	}

	for _, id := range topo.order {
		if state[id] != unvisited {
			continue
		}

		if found := visit(id); found != "" {
			return found
		}
	}

	return ""
}
