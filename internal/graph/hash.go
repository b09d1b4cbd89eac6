package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// StructureHash is a stable digest over the multiset of node kinds and the set of
// edges (by source/target pair), independent of node/edge ordering in the input
// and of position fields. Two graphs that differ only in node-list order,
// edge-list order, or position data hash identically (Testable Property 5).
func StructureHash(nodes []Node, edges []Edge) string {
	kinds := make([]string, 0, len(nodes))
	for _, n := range nodes {
		kinds = append(kinds, string(n.Kind))
	}
	sort.Strings(kinds)

	pairs := make([]string, 0, len(edges))
	for _, e := range edges {
		pairs = append(pairs, e.Source+"->"+e.Target)
	}
	sort.Strings(pairs)

	var b strings.Builder
	b.WriteString("kinds:")
	b.WriteString(strings.Join(kinds, ","))
	b.WriteString("|edges:")
	b.WriteString(strings.Join(pairs, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}
