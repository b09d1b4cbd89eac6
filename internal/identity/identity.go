// Package identity derives a human-readable workflow name/category/description
// from graph structure alone — no model call. Grounded on the original
// implementation's _generate_workflow_identity structural-naming rules
// (original_source/backend/services/workflow_executor.py), generalized for Go.
package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/orchestrator/internal/graph"
)

// Identity matches the spec §3 data model entry.
type Identity struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Confidence    float64 `json:"confidence"`
	StructureHash string  `json:"structure_hash"`
}

// Generator produces identities and suppresses duplicate work for identical
// graph structures submitted in rapid succession, per spec §4.4 step 3.
type Generator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	identity  Identity
	expiresAt time.Time
}

// New constructs a Generator with the spec-mandated 30s dedup window.
func New() *Generator {
	return &Generator{cache: make(map[string]cacheEntry), ttl: 30 * time.Second}
}

// Generate returns the identity for g, reusing a cached result for the same
// structure_hash within the dedup window.
func (gn *Generator) Generate(g *graph.Graph) Identity {
	hash := graph.StructureHash(g.Nodes, g.Edges)

	gn.mu.Lock()
	if entry, ok := gn.cache[hash]; ok && time.Now().Before(entry.expiresAt) {
		gn.mu.Unlock()
		return entry.identity
	}
	gn.mu.Unlock()

	id := generate(g, hash)

	gn.mu.Lock()
	gn.cache[hash] = cacheEntry{identity: id, expiresAt: time.Now().Add(gn.ttl)}
	gn.mu.Unlock()

	return id
}

func generate(g *graph.Graph, hash string) Identity {
	var agentCount, toolCount int
	var systemWorkflow bool
	for _, n := range g.Nodes {
		switch n.Kind {
		case graph.KindAgent:
			agentCount++
			switch n.Name {
			case "ContextExtractor", "ContextGenerator", "contextextractor", "contextgenerator":
				systemWorkflow = true
			}
		case graph.KindTool:
			toolCount++
		}
	}

	if systemWorkflow {
		return Identity{
			Name:          "System Workflow",
			Category:      "system",
			Description:   "Internal system processing",
			Confidence:    0.9,
			StructureHash: hash,
		}
	}

	var name, description, category string
	switch {
	case agentCount > 1:
		name = fmt.Sprintf("%d-Agent Workflow", agentCount)
		description = fmt.Sprintf("A workflow with %d AI agents", agentCount)
	case agentCount == 1 && toolCount > 0:
		name = "Agent-Tool Workflow"
		description = fmt.Sprintf("A workflow with %d tool%s", toolCount, plural(toolCount))
	case agentCount == 1:
		name = "Single Agent Workflow"
		description = "A workflow with one AI agent"
	default:
		name = "Custom Workflow"
		description = "A custom workflow"
	}

	switch {
	case toolCount > agentCount:
		category = "automation"
	case agentCount >= 2:
		category = "multi-agent"
	default:
		category = "general"
	}

	return Identity{
		Name:          name,
		Category:      category,
		Description:   description,
		Confidence:    0.7,
		StructureHash: hash,
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
