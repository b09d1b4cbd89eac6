// Package graph holds the typed node/edge model submitted by callers: a closed set
// of node kinds, the edges between them, and the adjacency indices the rest of the
// engine (validator, planner, dispatcher) builds on.
package graph

import "fmt"

// Kind is the closed set of node kinds the engine understands. Unregistered kinds
// fail validation rather than silently degrading into a passthrough.
type Kind string

const (
	KindAgent       Kind = "agent"
	KindTool        Kind = "tool"
	KindConditional Kind = "conditional"
	KindInput       Kind = "input"
	KindOutput      Kind = "output"
)

// Format is the optional serialization hint carried by input/output nodes.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Operator is the closed set of comparison operators a conditional rule may use.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Rule is the predicate attached to a conditional branch.
type Rule struct {
	JSONPath string   `json:"jsonpath"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Condition is one branch of a conditional node.
type Condition struct {
	ID        string `json:"id"`
	Rule      *Rule  `json:"rule,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// Node is a single vertex in a submitted graph. Data is kind-specific; callers are
// expected to have populated the fields relevant to Kind, validated in internal/validator.
type Node struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	Data     map[string]any `json:"data"`
	Position map[string]any `json:"position,omitempty"`

	// Agent fields, only meaningful when Kind == KindAgent.
	Name         string `json:"-"`
	Instructions string `json:"-"`
	ModelID      string `json:"-"`
	Description  string `json:"-"`

	// Tool fields, only meaningful when Kind == KindTool.
	ToolType string `json:"-"`

	// Conditional fields, only meaningful when Kind == KindConditional.
	Conditions []Condition `json:"-"`

	// Input/output fields.
	Format Format `json:"-"`
}

// Edge is a directed connection between two nodes. SourceHandle names the
// condition branch (for edges leaving a conditional node) or is empty.
// TargetHandle == "tool" on an edge into an agent node means the source tool is
// bound into that agent's tool set.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Graph is the full submission: nodes, edges, and the indices built once over them.
// Construct via New; the zero value is not usable.
type Graph struct {
	Nodes []Node
	Edges []Edge

	byID     map[string]*Node
	outEdges map[string][]*Edge
	inEdges  map[string][]*Edge
}

// New builds a Graph and its adjacency indices once, up front, so the validator,
// planner, and dispatcher never recompute them per traversal.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		Nodes:    nodes,
		Edges:    edges,
		byID:     make(map[string]*Node, len(nodes)),
		outEdges: make(map[string][]*Edge, len(nodes)),
		inEdges:  make(map[string][]*Edge, len(nodes)),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		g.byID[n.ID] = n
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		g.outEdges[e.Source] = append(g.outEdges[e.Source], e)
		g.inEdges[e.Target] = append(g.inEdges[e.Target], e)
	}
	return g
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Out returns the edges leaving id, in submission order.
func (g *Graph) Out(id string) []*Edge { return g.outEdges[id] }

// In returns the edges entering id, in submission order.
func (g *Graph) In(id string) []*Edge { return g.inEdges[id] }

// IsExecutable reports whether a node kind is ever dispatched (agent or tool);
// conditional/input/output nodes route data but don't count toward node_status.
func (k Kind) IsExecutable() bool { return k == KindAgent || k == KindTool }

func (n Node) String() string {
	return fmt.Sprintf("Node{id=%s kind=%s}", n.ID, n.Kind)
}
