package dispatch

import (
	"context"

	"github.com/lyzr/orchestrator/internal/dispatch/tools"
	"github.com/lyzr/orchestrator/internal/engineerr"
)

// toolHandler resolves a node's canonicalized tool_type to a tools.Tool,
// enforces the credential broker's per-user whitelist, and surfaces
// transport/status faults through the engineerr taxonomy.
type toolHandler struct {
	registry *tools.Registry
}

func newToolHandler(registry *tools.Registry) Handler {
	return &toolHandler{registry: registry}
}

func (h *toolHandler) Handle(ctx context.Context, req Request) (Outputs, error) {
	n := req.Node
	toolType := n.ToolType

	var apiKey string
	if req.Exec.Broker != nil {
		cred, ok, err := req.Exec.Broker.Resolve(ctx, req.Exec.UserID)
		if err != nil {
			return Outputs{}, engineerr.HandlerFailed(n.ID, err)
		}
		if ok {
			if !cred.Allows(toolType) {
				return Outputs{}, engineerr.NotEnabled(n.ID, toolType)
			}
			apiKey = cred.APIKey
		}
	}

	inputs := make(map[string]any, len(req.Inputs)+len(n.Data))
	for k, v := range n.Data {
		inputs[k] = v
	}
	for k, v := range req.Inputs {
		inputs[k] = v
	}

	tool := h.registry.Resolve(toolType)
	result, err := tool.Invoke(ctx, tools.Call{
		NodeID:   n.ID,
		ToolType: toolType,
		Inputs:   inputs,
		APIKey:   apiKey,
	})
	if err != nil {
		if se, ok := err.(interface{ Status() int }); ok {
			return Outputs{}, engineerr.Transport(n.ID, se.Status(), err)
		}
		return Outputs{}, engineerr.Transport(n.ID, 0, err)
	}

	return Outputs{Values: map[string]any{"result": result.Output, "default": result.Output}}, nil
}
