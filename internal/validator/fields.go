package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lyzr/orchestrator/internal/graph"
)

// acceptedModelPrefixes is the provider-prefix allowlist from spec §4.2.
var acceptedModelPrefixes = []string{
	"gpt-", "claude-", "gemini-", "llama-", "mixtral-", "anthropic", "openai", "o1-", "o3-",
}

func isKnownModelPrefix(modelID string) bool {
	lower := strings.ToLower(modelID)
	for _, p := range acceptedModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// toolAliases canonicalizes registered tool_type aliases after hyphen->underscore
// normalization, per spec §4.3.
var toolAliases = map[string]string{
	"web_search":     "search_web",
	"webpage_visit":  "visit_webpage",
	"websearch":      "search_web", // WebSearch, case-folded
}

// CanonicalToolType applies the spec's hyphen-to-underscore canonicalization and
// registered-alias resolution. The validator stores its result in Node.ToolType,
// and the tool dispatcher resolves that stored value without canonicalizing again.
func CanonicalToolType(toolType string) string {
	canon := strings.ReplaceAll(toolType, "-", "_")
	if alias, ok := toolAliases[strings.ToLower(canon)]; ok {
		return alias
	}
	return canon
}

func str(data map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// isComposioType reports whether a data.type value names a Composio-style tool.
func isComposioType(data map[string]any) bool {
	t, _ := str(data, "type")
	return strings.HasPrefix(t, "composio-")
}

// classify returns the node's effective dispatch kind under the unified rule from
// spec §4.1 check 2: tool when kind==tool or data.type begins with "composio-";
// else agent when kind==agent.
func classify(n *graph.Node) graph.Kind {
	if n.Kind == graph.KindTool || isComposioType(n.Data) {
		return graph.KindTool
	}
	return n.Kind
}

// populateAgentFields extracts and validates agent-kind fields from Data,
// mutating n in place. Returns a validation error, if any.
func populateAgentFields(n *graph.Node) error {
	name, ok := str(n.Data, "name", "label")
	if !ok {
		return fmt.Errorf("missing-field: agent node %q missing name/label", n.ID)
	}
	n.Name = name

	instructions, _ := str(n.Data, "instructions")
	if strings.TrimSpace(instructions) == "" {
		return fmt.Errorf("missing-field: agent node %q has empty instructions", n.ID)
	}
	n.Instructions = instructions

	if modelID, ok := str(n.Data, "model_id"); ok {
		if !isKnownModelPrefix(modelID) {
			return fmt.Errorf("bad-model-id: agent node %q has unrecognized model_id %q", n.ID, modelID)
		}
		n.ModelID = modelID
	}

	n.Description, _ = str(n.Data, "description")
	return nil
}

// populateToolFields extracts and validates tool-kind fields from Data, applying
// the spec §4.1 check 4 synthesis rule (browse/search model_id -> tool_type=web_search).
// A Composio-typed node with no tool_type takes its data.type as the tool type.
func populateToolFields(n *graph.Node) error {
	name, ok := str(n.Data, "name", "label")
	if !ok {
		return fmt.Errorf("missing-field: tool node %q missing name/label", n.ID)
	}
	n.Name = name

	toolType, hasToolType := str(n.Data, "tool_type")
	modelID, hasModelID := str(n.Data, "model_id")

	if !hasToolType && hasModelID {
		lower := strings.ToLower(modelID)
		if strings.Contains(lower, "browse") || strings.Contains(lower, "search") {
			toolType = "web_search"
			hasToolType = true
			delete(n.Data, "model_id")
		}
	}
	if !hasToolType && isComposioType(n.Data) {
		toolType, hasToolType = str(n.Data, "type")
	}

	if hasToolType {
		n.ToolType = CanonicalToolType(toolType)
	}
	return nil
}

// populateConditionalFields extracts the ordered condition list from Data.
func populateConditionalFields(n *graph.Node) error {
	raw, ok := n.Data["conditions"]
	if !ok {
		return fmt.Errorf("missing-field: conditional node %q missing conditions", n.ID)
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("missing-field: conditional node %q conditions is not a list", n.ID)
	}

	conditions := make([]graph.Condition, 0, len(list))
	defaults := 0
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("missing-field: conditional node %q has a malformed condition entry", n.ID)
		}
		id, _ := str(m, "id")
		cond := graph.Condition{ID: id}
		if isDefault, _ := m["is_default"].(bool); isDefault {
			cond.IsDefault = true
			defaults++
		}
		if ruleRaw, ok := m["rule"]; ok && ruleRaw != nil {
			ruleMap, ok := ruleRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("missing-field: conditional node %q has a malformed rule", n.ID)
			}
			jp, _ := str(ruleMap, "jsonpath")
			op, _ := str(ruleMap, "operator")
			val := valueToString(ruleMap["value"])
			cond.Rule = &graph.Rule{JSONPath: jp, Operator: graph.Operator(op), Value: val}
		}
		conditions = append(conditions, cond)
	}
	if defaults > 1 {
		return fmt.Errorf("missing-field: conditional node %q has more than one default branch", n.ID)
	}
	n.Conditions = conditions
	return nil
}

func valueToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func populateIOFields(n *graph.Node) {
	if f, ok := str(n.Data, "format"); ok && (f == string(graph.FormatJSON) || f == string(graph.FormatText)) {
		n.Format = graph.Format(f)
	} else {
		n.Format = graph.FormatText
	}
}
