package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/orchestrator/internal/graph"
)

// handleInput echoes the execution's initial input under "result" and
// "default", per spec §4.3.
func handleInput(_ context.Context, req Request) (Outputs, error) {
	return Outputs{Values: map[string]any{
		"result":  req.Exec.InitialInput,
		"default": req.Exec.InitialInput,
	}}, nil
}

// handleOutput passes its upstream input through; when the node's format is
// json, the value is wrapped as {"result": value} and serialized canonically
// (encoding/json sorts map keys lexicographically, matching the canonical-json
// requirement elsewhere in the spec, e.g. webhook trigger bodies).
func handleOutput(_ context.Context, req Request) (Outputs, error) {
	value := firstInput(req.Inputs)

	if req.Node.Format == graph.FormatJSON {
		wrapped := map[string]any{"result": value}
		b, err := json.Marshal(wrapped)
		if err != nil {
			return Outputs{}, fmt.Errorf("output node %q: marshal json: %w", req.Node.ID, err)
		}
		s := string(b)
		return Outputs{Values: map[string]any{"result": s, "default": s}}, nil
	}

	return Outputs{Values: map[string]any{"result": value, "default": value}}, nil
}

// firstInput returns the "result"/"default" of the single contributing
// upstream, or the already-concatenated multi-source string the engine
// prepares before invoking the handler.
func firstInput(inputs map[string]any) any {
	if v, ok := inputs["result"]; ok {
		return v
	}
	if v, ok := inputs["default"]; ok {
		return v
	}
	return nil
}
