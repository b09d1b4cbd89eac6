// Package validator implements the structural checks, cycle detection, and path
// enumeration from spec §4.1, plus the LRU+TTL result cache that suppresses
// re-validating identical submissions in rapid succession.
package validator

import (
	"fmt"
	"time"

	"github.com/lyzr/orchestrator/internal/engineerr"
	"github.com/lyzr/orchestrator/internal/graph"
)

const (
	cacheTTL      = 5 * time.Second
	cacheCapacity = 50
	maxPathLen    = 20
)

// Result is the verdict of a successful validation: per-node dispatch kind and
// the start/end sets the planner can reuse without recomputing reachability.
type Result struct {
	Ok      bool
	Details string
	Starts  []string
	Ends    []string
}

// Validator runs the ordered check pipeline and caches verdicts by content hash.
type Validator struct {
	cache *resultCache
}

// New constructs a Validator with the spec-mandated 5s TTL / 50-entry LRU cache.
func New() *Validator {
	return &Validator{cache: newResultCache(cacheTTL, cacheCapacity)}
}

// Validate runs the eight ordered checks from spec §4.1 against g, mutating g's
// nodes in place to normalize kind-specific fields (agent/tool/conditional/io),
// and returns the cached verdict for identical (nodes, edges) content within the
// TTL window. The first failing check short-circuits the remainder.
func (v *Validator) Validate(g *graph.Graph) (Result, error) {
	key := contentHash(g)
	if cached, ok := v.cache.get(key); ok {
		if !cached.Ok {
			return cached, engineerr.Validate("cached", cached.Details)
		}
		if err := checkAndNormalizeNodeFields(g); err != nil {
			return fail(err), err
		}
		return cached, nil
	}

	result, err := v.run(g)
	v.cache.put(key, result)
	return result, err
}

func (v *Validator) run(g *graph.Graph) (Result, error) {
	if err := checkWellFormed(g); err != nil {
		return fail(err), err
	}
	if err := checkExecutablePresence(g); err != nil {
		return fail(err), err
	}
	if err := checkAndNormalizeNodeFields(g); err != nil {
		return fail(err), err
	}
	if err := checkEdgeEndpoints(g); err != nil {
		return fail(err), err
	}
	starts, ends, err := checkFlow(g)
	if err != nil {
		return fail(err), err
	}
	if err := checkAcyclic(g); err != nil {
		return fail(err), err
	}
	if err := checkPathLength(g, starts, ends); err != nil {
		return fail(err), err
	}
	return Result{Ok: true, Details: "ok", Starts: starts, Ends: ends}, nil
}

func fail(err error) Result {
	return Result{Ok: false, Details: err.Error()}
}

// contentHash is graph.StructureHash plus the node and edge counts. Like the
// structure hash it covers node kinds and edge endpoints only, so graphs that
// differ only in Data or positions share one cache entry.
func contentHash(g *graph.Graph) string {
	return graph.StructureHash(g.Nodes, g.Edges) + fmt.Sprintf("|n=%d|e=%d", len(g.Nodes), len(g.Edges))
}

// checkWellFormed is check 1: every node has id, kind, data.
func checkWellFormed(g *graph.Graph) error {
	for _, n := range g.Nodes {
		if n.ID == "" {
			return engineerr.Validate("missing-field", "node missing id")
		}
		if n.Kind == "" {
			return engineerr.Validate("missing-field", fmt.Sprintf("node %q missing kind", n.ID))
		}
		if n.Data == nil {
			return engineerr.Validate("missing-field", fmt.Sprintf("node %q missing data", n.ID))
		}
	}
	return nil
}

// checkExecutablePresence is check 2: at least one agent or tool node, using the
// unified classification rule.
func checkExecutablePresence(g *graph.Graph) error {
	for i := range g.Nodes {
		if k := classify(&g.Nodes[i]); k.IsExecutable() {
			return nil
		}
	}
	return engineerr.Validate("orphan", "graph has no executable agent or tool node")
}

// checkAndNormalizeNodeFields is checks 3 and 4: agent/tool field population,
// conditional structure, and io format defaulting.
func checkAndNormalizeNodeFields(g *graph.Graph) error {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		effective := classify(n)
		switch effective {
		case graph.KindAgent:
			if err := populateAgentFields(n); err != nil {
				return engineerr.Validate("missing-field", err.Error())
			}
		case graph.KindTool:
			n.Kind = graph.KindTool
			if err := populateToolFields(n); err != nil {
				return engineerr.Validate("missing-field", err.Error())
			}
		case graph.KindConditional:
			if err := populateConditionalFields(n); err != nil {
				return engineerr.Validate("missing-field", err.Error())
			}
		case graph.KindInput, graph.KindOutput:
			populateIOFields(n)
		default:
			return engineerr.Validate("missing-field", fmt.Sprintf("node %q has unknown kind %q", n.ID, n.Kind))
		}
	}
	return nil
}

// checkEdgeEndpoints is check 5.
func checkEdgeEndpoints(g *graph.Graph) error {
	for _, e := range g.Edges {
		if _, ok := g.Node(e.Source); !ok {
			return engineerr.Validate("bad-edge-endpoint", fmt.Sprintf("edge %q source %q does not exist", e.ID, e.Source))
		}
		if _, ok := g.Node(e.Target); !ok {
			return engineerr.Validate("bad-edge-endpoint", fmt.Sprintf("edge %q target %q does not exist", e.ID, e.Target))
		}
	}
	return nil
}

// checkFlow is check 6: orphan/start/end/reachability.
func checkFlow(g *graph.Graph) (starts, ends []string, err error) {
	if len(g.Nodes) == 1 {
		id := g.Nodes[0].ID
		return []string{id}, []string{id}, nil
	}

	for _, n := range g.Nodes {
		hasIn := len(g.In(n.ID)) > 0
		hasOut := len(g.Out(n.ID)) > 0
		if !hasIn && !hasOut {
			return nil, nil, engineerr.Validate("orphan", fmt.Sprintf("node %q is disconnected", n.ID))
		}
		if !hasIn {
			starts = append(starts, n.ID)
		}
		if !hasOut {
			ends = append(ends, n.ID)
		}
	}
	if len(starts) == 0 {
		return nil, nil, engineerr.Validate("cycle", "graph has no start node (every node has an incoming edge, so the graph contains a cycle)")
	}
	if len(ends) == 0 {
		return nil, nil, engineerr.Validate("cycle", "graph has no end node (every node has an outgoing edge, so the graph contains a cycle)")
	}

	reachable := make(map[string]bool, len(g.Nodes))
	queue := append([]string{}, starts...)
	for _, s := range starts {
		reachable[s] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Out(cur) {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	for _, n := range g.Nodes {
		if !reachable[n.ID] {
			return nil, nil, engineerr.Validate("unreachable", fmt.Sprintf("node %q is not reachable from any start node", n.ID))
		}
	}
	return starts, ends, nil
}

// checkAcyclic is check 7: DFS with recursion-stack detection.
func checkAcyclic(g *graph.Graph) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, e := range g.Out(id) {
			switch color[e.Target] {
			case gray:
				return engineerr.Validate("cycle", fmt.Sprintf("cycle detected through node %q", e.Target))
			case white:
				if err := visit(e.Target); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkPathLength is check 8: longest simple start->end path <= 20 nodes.
func checkPathLength(g *graph.Graph, starts, ends []string) error {
	endSet := make(map[string]bool, len(ends))
	for _, e := range ends {
		endSet[e] = true
	}

	var longest int
	var dfs func(id string, depth int, visited map[string]bool)
	dfs = func(id string, depth int, visited map[string]bool) {
		if endSet[id] && depth > longest {
			longest = depth
		}
		for _, e := range g.Out(id) {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			dfs(e.Target, depth+1, visited)
			delete(visited, e.Target)
		}
	}

	for _, s := range starts {
		visited := map[string]bool{s: true}
		dfs(s, 1, visited)
	}

	if longest > maxPathLen {
		return engineerr.Validate("too-deep", fmt.Sprintf("longest start->end path has %d nodes, exceeds %d", longest, maxPathLen))
	}
	return nil
}
