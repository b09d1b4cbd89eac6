package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/orchestrator/internal/graph"
)

func TestGraph_AdjacencyAndLookup(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a", Kind: graph.KindInput},
		{ID: "b", Kind: graph.KindAgent},
		{ID: "c", Kind: graph.KindOutput},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
	}
	g := graph.New(nodes, edges)

	n, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, graph.KindAgent, n.Kind)

	_, ok = g.Node("missing")
	assert.False(t, ok)

	assert.Len(t, g.Out("a"), 1)
	assert.Len(t, g.In("b"), 1)
	assert.Empty(t, g.Out("c"))
	assert.Empty(t, g.In("a"))
}

func TestKind_IsExecutable(t *testing.T) {
	assert.True(t, graph.KindAgent.IsExecutable())
	assert.True(t, graph.KindTool.IsExecutable())
	assert.False(t, graph.KindConditional.IsExecutable())
	assert.False(t, graph.KindInput.IsExecutable())
	assert.False(t, graph.KindOutput.IsExecutable())
}
