package dispatch

import (
	"context"
	"fmt"

	"github.com/lyzr/orchestrator/internal/collab"
	"github.com/lyzr/orchestrator/internal/engineerr"
)

// handleAgent delegates to the agent invoker collaborator with the agent's
// name/model/instructions and the tools bound via target_handle="tool" edges,
// per spec §4.3.
func handleAgent(ctx context.Context, req Request) (Outputs, error) {
	n := req.Node
	prompt := promptFrom(req.Inputs)

	tools := req.Exec.BoundTools(n.ID)

	result, err := req.Exec.Invoker.Invoke(ctx, collab.AgentSpec{
		Name:         n.Name,
		ModelID:      n.ModelID,
		Instructions: n.Instructions,
		Description:  n.Description,
	}, tools, prompt)
	if err != nil {
		return Outputs{}, engineerr.HandlerFailed(n.ID, fmt.Errorf("agent %q invocation failed: %w", n.ID, err))
	}

	return Outputs{
		Values: map[string]any{"result": result.FinalOutput, "default": result.FinalOutput},
		Trace:  &result.Trace,
	}, nil
}

// promptFrom returns the "prompt" input when it is a string, else the first
// input value stringified. Joining several upstream outputs with numbered
// prefixes happens earlier, in the engine, before the handler is called.
func promptFrom(inputs map[string]any) string {
	if v, ok := inputs["prompt"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return stringify(firstInput(inputs))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
