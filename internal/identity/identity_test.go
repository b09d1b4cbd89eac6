package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/identity"
)

func TestGenerate_SingleAgent(t *testing.T) {
	g := graph.New([]graph.Node{{ID: "a1", Kind: graph.KindAgent, Name: "Helper"}}, nil)
	id := identity.New().Generate(g)

	assert.Equal(t, "Single Agent Workflow", id.Name)
	assert.Equal(t, "general", id.Category)
	assert.NotEmpty(t, id.StructureHash)
}

func TestGenerate_MultiAgent(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a1", Kind: graph.KindAgent, Name: "One"},
		{ID: "a2", Kind: graph.KindAgent, Name: "Two"},
	}
	g := graph.New(nodes, nil)
	id := identity.New().Generate(g)

	assert.Equal(t, "2-Agent Workflow", id.Name)
	assert.Equal(t, "multi-agent", id.Category)
}

func TestGenerate_AgentToolWorkflow(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a1", Kind: graph.KindAgent, Name: "One"},
		{ID: "t1", Kind: graph.KindTool},
		{ID: "t2", Kind: graph.KindTool},
	}
	g := graph.New(nodes, nil)
	id := identity.New().Generate(g)

	assert.Equal(t, "Agent-Tool Workflow", id.Name)
	assert.Equal(t, "automation", id.Category) // toolCount(2) > agentCount(1)
}

func TestGenerate_SystemWorkflowOverride(t *testing.T) {
	g := graph.New([]graph.Node{{ID: "a1", Kind: graph.KindAgent, Name: "ContextExtractor"}}, nil)
	id := identity.New().Generate(g)

	assert.Equal(t, "System Workflow", id.Name)
	assert.Equal(t, "system", id.Category)
	assert.Equal(t, 0.9, id.Confidence)
}

func TestGenerate_StructureHashMatchesGraphPackage(t *testing.T) {
	nodes := []graph.Node{{ID: "a1", Kind: graph.KindAgent}}
	g := graph.New(nodes, nil)
	id := identity.New().Generate(g)

	assert.Equal(t, graph.StructureHash(nodes, nil), id.StructureHash)
}

func TestGenerate_DedupCacheReturnsSameIdentity(t *testing.T) {
	gen := identity.New()
	g := graph.New([]graph.Node{{ID: "a1", Kind: graph.KindAgent, Name: "One"}}, nil)

	id1 := gen.Generate(g)
	id2 := gen.Generate(g)
	assert.Equal(t, id1, id2)
}
