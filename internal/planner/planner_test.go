package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/planner"
)

func TestBuild_SingleNode(t *testing.T) {
	g := graph.New([]graph.Node{{ID: "a", Kind: graph.KindAgent}}, nil)
	plan := planner.Build(g, nil, nil)
	assert.Equal(t, []string{"a"}, plan.Order)
	assert.Equal(t, []string{"a"}, plan.Starts)
	assert.Equal(t, []string{"a"}, plan.Ends)
}

func TestBuild_InputNodesLead(t *testing.T) {
	// "loose" node has no incoming edge but isn't an input kind; "in1" is a
	// kind=input node with no incoming edge either. Input nodes must be
	// ordered first among the zero-indegree set.
	nodes := []graph.Node{
		{ID: "loose", Kind: graph.KindAgent},
		{ID: "in1", Kind: graph.KindInput},
		{ID: "out1", Kind: graph.KindOutput},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "in1", Target: "out1"},
	}
	g := graph.New(nodes, edges)
	plan := planner.Build(g, nil, nil)

	assert.Equal(t, "in1", plan.Order[0])
}

func TestBuild_TopologicalOrder(t *testing.T) {
	nodes := []graph.Node{
		{ID: "in1", Kind: graph.KindInput},
		{ID: "agent1", Kind: graph.KindAgent},
		{ID: "out1", Kind: graph.KindOutput},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "in1", Target: "agent1"},
		{ID: "e2", Source: "agent1", Target: "out1"},
	}
	g := graph.New(nodes, edges)
	plan := planner.Build(g, nil, nil)

	assert.Equal(t, []string{"in1", "agent1", "out1"}, plan.Order)
}

func TestBuild_TieBreakByIngestionOrder(t *testing.T) {
	// Two independent zero-indegree nodes: ingestion order determines the tie-break.
	nodes := []graph.Node{
		{ID: "second", Kind: graph.KindAgent},
		{ID: "first", Kind: graph.KindAgent},
	}
	g := graph.New(nodes, nil)
	plan := planner.Build(g, nil, nil)

	assert.Equal(t, []string{"second", "first"}, plan.Order)
}

func TestBuild_DeterministicAcrossCalls(t *testing.T) {
	nodes := []graph.Node{
		{ID: "in1", Kind: graph.KindInput},
		{ID: "a", Kind: graph.KindAgent},
		{ID: "b", Kind: graph.KindAgent},
		{ID: "out1", Kind: graph.KindOutput},
	}
	edges := []graph.Edge{
		{ID: "e1", Source: "in1", Target: "a"},
		{ID: "e2", Source: "in1", Target: "b"},
		{ID: "e3", Source: "a", Target: "out1"},
		{ID: "e4", Source: "b", Target: "out1"},
	}
	g := graph.New(nodes, edges)

	plan1 := planner.Build(g, nil, nil)
	plan2 := planner.Build(g, nil, nil)
	assert.Equal(t, plan1.Order, plan2.Order)
}
