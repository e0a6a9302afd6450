// Package graph implements the dependency DAG vx's Execution Pipeline uses
// to order the runtime installs a single request transitively needs:
// three-color DFS cycle detection, then Kahn's-algorithm layering so
// independent installs in the same layer can run in parallel.
package graph

import (
	"fmt"
	"maps"
	"slices"
)

// NodeID uniquely identifies a runtime in the dependency graph.
type NodeID string

// Node represents one runtime request in the dependency graph.
type Node struct {
	ID      NodeID
	Runtime string
	Version string // the resolved version, once known; empty until resolved
}

// Layer is a group of nodes with no dependency edges between them, and can
// therefore be ensured/installed concurrently.
type Layer struct {
	Nodes []*Node
}

// dag is a directed acyclic graph of runtime dependencies.
type dag struct {
	nodes    map[NodeID]*Node
	edges    map[NodeID]map[NodeID]struct{} // from -> set of nodes it depends on
	inDegree map[NodeID]int
}

func newDAG() *dag {
	return &dag{
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[NodeID]map[NodeID]struct{}),
		inDegree: make(map[NodeID]int),
	}
}

// addNode adds (or returns the existing) node for a runtime name.
func (g *dag) addNode(runtime string) *Node {
	id := NodeID(runtime)
	if node, exists := g.nodes[id]; exists {
		return node
	}
	node := &Node{ID: id, Runtime: runtime}
	g.nodes[id] = node
	g.inDegree[id] = 0
	return node
}

// addEdge records that `from` depends on `to`. Both nodes must already
// exist; this mirrors the teacher's fail-fast contract that callers build
// the node set before wiring edges.
func (g *dag) addEdge(from, to *Node) {
	if from == nil || to == nil {
		panic("graph: addEdge called with nil node")
	}
	if _, exists := g.nodes[from.ID]; !exists {
		panic(fmt.Sprintf("graph: node %s does not exist", from.ID))
	}
	if _, exists := g.nodes[to.ID]; !exists {
		panic(fmt.Sprintf("graph: node %s does not exist", to.ID))
	}

	if g.edges[from.ID] == nil {
		g.edges[from.ID] = make(map[NodeID]struct{})
	}
	if _, exists := g.edges[from.ID][to.ID]; !exists {
		g.edges[from.ID][to.ID] = struct{}{}
		g.inDegree[from.ID]++
	}
}

type nodeColor int

const (
	white nodeColor = iota
	gray
	black
)

// detectCycle returns a cycle path if one exists, nil otherwise.
func (g *dag) detectCycle() []NodeID {
	color := make(map[NodeID]nodeColor, len(g.nodes))
	parent := make(map[NodeID]NodeID, len(g.nodes))

	var cycle []NodeID

	var dfs func(node NodeID) bool
	dfs = func(node NodeID) bool {
		color[node] = gray

		for dep := range g.edges[node] {
			if color[dep] == gray {
				cycle = []NodeID{dep}
				for curr := node; curr != dep; curr = parent[curr] {
					cycle = append(cycle, curr)
				}
				cycle = append(cycle, dep)
				slices.Reverse(cycle)
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}

		color[node] = black
		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}

	return nil
}

// sortNodesByName sorts nodes alphabetically for deterministic layer output.
func sortNodesByName(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if a.Runtime < b.Runtime {
			return -1
		}
		if a.Runtime > b.Runtime {
			return 1
		}
		return 0
	})
}

// topologicalSort returns execution layers using Kahn's algorithm. Nodes in
// the same layer have no dependency edges between them.
func (g *dag) topologicalSort() ([]Layer, error) {
	if cycle := g.detectCycle(); cycle != nil {
		return nil, NewCycleError(cycle)
	}

	inDegree := make(map[NodeID]int, len(g.inDegree))
	maps.Copy(inDegree, g.inDegree)

	reverseEdges := make(map[NodeID][]NodeID, len(g.nodes))
	for from, deps := range g.edges {
		for dep := range deps {
			reverseEdges[dep] = append(reverseEdges[dep], from)
		}
	}

	layers := make([]Layer, 0, len(g.nodes))

	queue := make([]NodeID, 0, len(g.nodes))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		layer := Layer{Nodes: make([]*Node, 0, len(queue))}
		nextQueue := make([]NodeID, 0, len(g.nodes))

		for _, id := range queue {
			layer.Nodes = append(layer.Nodes, g.nodes[id])

			for _, dependent := range reverseEdges[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					nextQueue = append(nextQueue, dependent)
				}
			}
		}

		sortNodesByName(layer.Nodes)
		layers = append(layers, layer)
		queue = nextQueue
	}

	return layers, nil
}

func (g *dag) nodeCount() int { return len(g.nodes) }

func (g *dag) edgeCount() int {
	count := 0
	for _, deps := range g.edges {
		count += len(deps)
	}
	return count
}
