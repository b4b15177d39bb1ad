package blueprint

import "github.com/flowforge/flowforge/pkg/models"

const (
	layoutOriginX  = 250
	layoutOriginY  = 300
	layoutSpacingX = 250
	layoutSpacingY = 150
)

// layout places nodes in columns by their longest distance from a root, using Kahn's
// algorithm over the connection map. Positions are cosmetic.
func layout(graph *models.WorkflowGraph) {
	indegree := make(map[string]int, len(graph.Nodes))
	depth := make(map[string]int, len(graph.Nodes))

	for _, targets := range graph.Connections {
		for _, target := range targets {
			indegree[target.Node]++
		}
	}

	queue := make([]string, 0, len(graph.Nodes))

	for _, node := range graph.Nodes {
		if indegree[node.Name] == 0 {
			queue = append(queue, node.Name)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range graph.Connections[current] {
			depth[target.Node] = max(depth[target.Node], depth[current]+1)

			indegree[target.Node]--
			if indegree[target.Node] == 0 {
				queue = append(queue, target.Node)
			}
		}
	}

	rows := make(map[int]int)

	for _, node := range graph.Nodes {
		column := depth[node.Name]
		node.Position = [2]int{
			layoutOriginX + layoutSpacingX*column,
			layoutOriginY + layoutSpacingY*rows[column],
		}
		rows[column]++
	}
}
