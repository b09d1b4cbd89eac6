// Package pricing is a small static per-token pricing table keyed by model
// name, the "collaborator" spec §4.6 takes as an explicit parameter when a
// span reports tokens but zero cost. Covers the gpt-, o1-, o3-, claude-,
// gemini-, llama- and mixtral- model families; other models (including bare
// "anthropic"/"openai" ids) resolve with ok=false and stay at zero cost.
package pricing

import "strings"

// Table is a static pricing.Table satisfying telemetry.PricingTable.
type Table struct {
	rates []rate
}

type rate struct {
	prefix        string
	inputPerToken float64
	outputPerToken float64
}

// Default returns a table covering common models of the families listed above.
// Rates are illustrative per-token USD costs, not live list prices.
func Default() *Table {
	return &Table{rates: []rate{
		{"gpt-4o-mini", 0.00000015, 0.0000006},
		{"gpt-4o", 0.0000025, 0.00001},
		{"gpt-4", 0.00003, 0.00006},
		{"gpt-3.5", 0.0000005, 0.0000015},
		{"o1-", 0.000015, 0.00006},
		{"o3-", 0.00001, 0.00004},
		{"claude-3-5-sonnet", 0.000003, 0.000015},
		{"claude-3-5-haiku", 0.0000008, 0.000004},
		{"claude-3-opus", 0.000015, 0.000075},
		{"claude-", 0.000003, 0.000015},
		{"gemini-1.5-pro", 0.00000125, 0.000005},
		{"gemini-1.5-flash", 0.000000075, 0.0000003},
		{"gemini-", 0.0000001, 0.0000004},
		{"llama-", 0.0000002, 0.0000002},
		{"mixtral-", 0.0000002, 0.0000002},
	}}
}

// Price implements telemetry.PricingTable: longest-prefix match over the model
// name, case-insensitive.
func (t *Table) Price(modelID string) (inputPerToken, outputPerToken float64, ok bool) {
	lower := strings.ToLower(modelID)
	bestLen := -1
	for _, r := range t.rates {
		if strings.HasPrefix(lower, r.prefix) && len(r.prefix) > bestLen {
			bestLen = len(r.prefix)
			inputPerToken, outputPerToken, ok = r.inputPerToken, r.outputPerToken, true
		}
	}
	return
}
