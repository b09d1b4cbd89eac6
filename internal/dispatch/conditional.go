package dispatch

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lyzr/orchestrator/internal/graph"
)

// EvaluateConditional selects the branch a conditional node routes to, per
// spec §4.3/§4.4.6: conditions are evaluated in listed order, the first
// matching rule wins; if none match, the is_default branch (if any) is taken;
// the caller (engine) treats a false ok as "no matching branch" — a runtime
// fault, not a validation failure (spec §9 open question (c)).
func EvaluateConditional(conditions []graph.Condition, input any) (selectedID string, ok bool) {
	payload := jsonPayload(input)

	var defaultID string
	hasDefault := false

	for _, c := range conditions {
		if c.IsDefault {
			defaultID = c.ID
			hasDefault = true
			continue
		}
		if c.Rule == nil {
			continue
		}
		if matchRule(*c.Rule, payload) {
			return c.ID, true
		}
	}

	if hasDefault {
		return defaultID, true
	}
	return "", false
}

// jsonPayload parses input as JSON if it is a string and uses a JSON object
// (map) input as-is; any other input, including a non-JSON string, is wrapped
// as {"result": input}.
func jsonPayload(input any) string {
	if m, ok := input.(map[string]any); ok {
		if b, err := json.Marshal(m); err == nil {
			return string(b)
		}
	}
	if s, ok := input.(string); ok {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			var probe any
			if json.Unmarshal([]byte(trimmed), &probe) == nil {
				return trimmed
			}
		}
		wrapped, _ := json.Marshal(map[string]any{"result": s})
		return string(wrapped)
	}
	wrapped, err := json.Marshal(map[string]any{"result": input})
	if err != nil {
		return `{"result":null}`
	}
	return string(wrapped)
}

func matchRule(rule graph.Rule, payload string) bool {
	res := gjson.Get(payload, gjsonPath(rule.JSONPath))
	if !res.Exists() {
		return false // missing path evaluates to false
	}
	extracted := res.String()

	switch rule.Operator {
	case graph.OpEquals:
		return extracted == rule.Value
	case graph.OpNotEquals:
		return extracted != rule.Value
	case graph.OpContains:
		return strings.Contains(extracted, rule.Value)
	case graph.OpGreaterThan:
		return numericCompare(extracted, rule.Value, func(a, b float64) bool { return a > b }, func(a, b string) bool { return a > b })
	case graph.OpLessThan:
		return numericCompare(extracted, rule.Value, func(a, b float64) bool { return a < b }, func(a, b string) bool { return a < b })
	default:
		return false
	}
}

// gjsonPath strips a leading JSONPath root selector ("$." or "$") from path,
// since rule authors commonly write conditions as JSONPath ("$.age") while
// gjson's own path syntax addresses the root implicitly.
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	return path
}

func numericCompare(a, b string, numCmp func(a, b float64) bool, strCmp func(a, b string) bool) bool {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		return numCmp(af, bf)
	}
	return strCmp(a, b)
}
