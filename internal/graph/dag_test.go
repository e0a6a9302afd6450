package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDAG_AddNode(t *testing.T) {
	d := newDAG()

	d.addNode("go")
	assert.Equal(t, 1, d.nodeCount())

	// Adding the same runtime again should not increase count
	d.addNode("go")
	assert.Equal(t, 1, d.nodeCount())

	d.addNode("node")
	assert.Equal(t, 2, d.nodeCount())
}

func TestDAG_AddEdge(t *testing.T) {
	d := newDAG()

	pythonNode := d.addNode("python")
	opensslNode := d.addNode("openssl")

	d.addEdge(pythonNode, opensslNode)
	assert.Equal(t, 1, d.edgeCount())

	// Adding the same edge again should not increase count
	d.addEdge(pythonNode, opensslNode)
	assert.Equal(t, 1, d.edgeCount())
}

func TestDAG_AddEdge_PanicOnNilNode(t *testing.T) {
	d := newDAG()
	node := d.addNode("node")

	assert.Panics(t, func() {
		d.addEdge(nil, node)
	})
	assert.Panics(t, func() {
		d.addEdge(node, nil)
	})
}

func TestDAG_AddEdge_PanicOnNonExistentNode(t *testing.T) {
	d := newDAG()
	node := d.addNode("node")
	fakeNode := &Node{ID: "fake", Runtime: "fake"}

	assert.Panics(t, func() {
		d.addEdge(node, fakeNode)
	})
}

func TestDAG_DetectCycle_NoCycle(t *testing.T) {
	d := newDAG()

	python := d.addNode("python")
	openssl := d.addNode("openssl")
	pip := d.addNode("pip-package")

	d.addEdge(python, openssl)
	d.addEdge(pip, python)

	assert.Nil(t, d.detectCycle())
}

func TestDAG_DetectCycle_SimpleCycle(t *testing.T) {
	d := newDAG()

	a := d.addNode("a")
	b := d.addNode("b")

	d.addEdge(a, b)
	d.addEdge(b, a)

	cycle := d.detectCycle()
	require.NotNil(t, cycle)
	assert.Len(t, cycle, 3) // a -> b -> a
}

func TestDAG_DetectCycle_ComplexCycle(t *testing.T) {
	d := newDAG()

	a := d.addNode("a")
	b := d.addNode("b")
	c := d.addNode("c")

	d.addEdge(a, b)
	d.addEdge(b, c)
	d.addEdge(c, a)

	cycle := d.detectCycle()
	require.NotNil(t, cycle)
	assert.GreaterOrEqual(t, len(cycle), 3)
}

func TestDAG_TopologicalSort_Simple(t *testing.T) {
	d := newDAG()

	// node depends on openssl, which has no further dependencies.
	node := d.addNode("node")
	openssl := d.addNode("openssl")

	d.addEdge(node, openssl)

	layers, err := d.topologicalSort()
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, NodeID("openssl"), layers[0].Nodes[0].ID)
	assert.Equal(t, NodeID("node"), layers[1].Nodes[0].ID)
}

func TestDAG_TopologicalSort_Diamond(t *testing.T) {
	d := newDAG()

	//     a
	//    / \
	//   b   c
	//    \ /
	//     d
	a := d.addNode("a")
	b := d.addNode("b")
	c := d.addNode("c")
	dd := d.addNode("d")

	d.addEdge(b, a)
	d.addEdge(c, a)
	d.addEdge(dd, b)
	d.addEdge(dd, c)

	layers, err := d.topologicalSort()
	require.NoError(t, err)
	require.Len(t, layers, 3)

	assert.Len(t, layers[0].Nodes, 1)
	assert.Equal(t, NodeID("a"), layers[0].Nodes[0].ID)

	require.Len(t, layers[1].Nodes, 2)
	ids := []NodeID{layers[1].Nodes[0].ID, layers[1].Nodes[1].ID}
	assert.Contains(t, ids, NodeID("b"))
	assert.Contains(t, ids, NodeID("c"))

	assert.Len(t, layers[2].Nodes, 1)
	assert.Equal(t, NodeID("d"), layers[2].Nodes[0].ID)
}

func TestDAG_TopologicalSort_MultiLayer(t *testing.T) {
	d := newDAG()

	// vite -> npm -> pnpm -> node -> openssl
	openssl := d.addNode("openssl")
	node := d.addNode("node")
	pnpm := d.addNode("pnpm")
	npm := d.addNode("npm")
	vite := d.addNode("vite")

	d.addEdge(node, openssl)
	d.addEdge(pnpm, node)
	d.addEdge(npm, pnpm)
	d.addEdge(vite, npm)

	layers, err := d.topologicalSort()
	require.NoError(t, err)
	require.Len(t, layers, 5)

	assert.Equal(t, NodeID("openssl"), layers[0].Nodes[0].ID)
	assert.Equal(t, NodeID("node"), layers[1].Nodes[0].ID)
	assert.Equal(t, NodeID("pnpm"), layers[2].Nodes[0].ID)
	assert.Equal(t, NodeID("npm"), layers[3].Nodes[0].ID)
	assert.Equal(t, NodeID("vite"), layers[4].Nodes[0].ID)
}

func TestDAG_TopologicalSort_WithCycle(t *testing.T) {
	d := newDAG()

	a := d.addNode("a")
	b := d.addNode("b")

	d.addEdge(a, b)
	d.addEdge(b, a)

	layers, err := d.topologicalSort()
	require.Error(t, err)
	assert.Nil(t, layers)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestDAG_TopologicalSort_ParallelNodes(t *testing.T) {
	d := newDAG()

	// node, python, and ruby share no edges — one layer.
	node := d.addNode("node")
	python := d.addNode("python")
	ruby := d.addNode("ruby")

	layers, err := d.topologicalSort()
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Len(t, layers[0].Nodes, 3)
	_ = node
	_ = python
	_ = ruby
}

func TestDAG_TopologicalSort_IndependentNodesSortedByName(t *testing.T) {
	d := newDAG()

	d.addNode("ruby")
	d.addNode("go")
	d.addNode("node")

	layers, err := d.topologicalSort()
	require.NoError(t, err)
	require.Len(t, layers, 1)
	require.Len(t, layers[0].Nodes, 3)

	expected := []NodeID{"go", "node", "ruby"}
	for i, node := range layers[0].Nodes {
		assert.Equal(t, expected[i], node.ID, "node at index %d", i)
	}
}
