// Package planner produces a deterministic topological traversal order over a
// validated graph: input nodes lead, ties break by ingestion order. Grounded on
// the teacher's IR dependency-list traversal (cmd/workflow-runner/compiler),
// adapted from a generic Kahn's-algorithm sort to the spec's input-first rule.
package planner

import (
	"github.com/lyzr/orchestrator/internal/graph"
)

// Plan is the ordered traversal the engine drives, plus the start/end sets used
// for reachability and identity bookkeeping.
type Plan struct {
	Order  []string // node ids in topological order
	Starts []string
	Ends   []string
}

// Build computes a topological order over g. starts/ends may be passed in from
// a prior validator.Result to avoid recomputing them; if nil, they're derived here.
func Build(g *graph.Graph, starts, ends []string) Plan {
	if len(g.Nodes) == 1 {
		id := g.Nodes[0].ID
		return Plan{Order: []string{id}, Starts: []string{id}, Ends: []string{id}}
	}

	if starts == nil {
		starts = deriveStarts(g)
	}
	if ends == nil {
		ends = deriveEnds(g)
	}

	indegree := make(map[string]int, len(g.Nodes))
	ingestionIndex := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		indegree[n.ID] = len(g.In(n.ID))
		ingestionIndex[n.ID] = i
	}

	// Start nodes = {v : in-degree(v)=0} U {v : kind=input}. Input nodes lead:
	// seed the ready queue with input nodes first (in ingestion order), then the
	// remaining zero-indegree nodes (in ingestion order).
	var ready []string
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == graph.KindInput && indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
			seen[n.ID] = true
		}
	}
	for _, n := range g.Nodes {
		if !seen[n.ID] && indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
			seen[n.ID] = true
		}
	}

	var order []string
	remaining := append([]string{}, ready...)
	for len(remaining) > 0 {
		// Pop the best ready node: input-kind nodes always precede non-input
		// nodes (spec's "input nodes lead" rule), ties within each tier broken
		// by ingestion index for determinism.
		bestIdx := 0
		for i := 1; i < len(remaining); i++ {
			if betterReady(g, remaining[i], remaining[bestIdx], ingestionIndex) {
				bestIdx = i
			}
		}
		cur := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		order = append(order, cur)

		for _, e := range g.Out(cur) {
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				remaining = append(remaining, e.Target)
			}
		}
	}

	return Plan{Order: order, Starts: starts, Ends: ends}
}

// betterReady reports whether candidate should be popped before other: input
// nodes form a higher-priority tier than all other kinds, and ties within a
// tier are broken by ingestion index.
func betterReady(g *graph.Graph, candidate, other string, ingestionIndex map[string]int) bool {
	candIsInput := isInputNode(g, candidate)
	otherIsInput := isInputNode(g, other)
	if candIsInput != otherIsInput {
		return candIsInput
	}
	return ingestionIndex[candidate] < ingestionIndex[other]
}

func isInputNode(g *graph.Graph, id string) bool {
	n, ok := g.Node(id)
	return ok && n.Kind == graph.KindInput
}

func deriveStarts(g *graph.Graph) []string {
	var starts []string
	for _, n := range g.Nodes {
		if len(g.In(n.ID)) == 0 || n.Kind == graph.KindInput {
			starts = append(starts, n.ID)
		}
	}
	return starts
}

func deriveEnds(g *graph.Graph) []string {
	var ends []string
	for _, n := range g.Nodes {
		if len(g.Out(n.ID)) == 0 {
			ends = append(ends, n.ID)
		}
	}
	return ends
}
