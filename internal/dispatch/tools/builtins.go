package tools

import (
	"context"
	"fmt"
)

// Tool is one named built-in or Composio-style external tool.
type Tool interface {
	Invoke(ctx context.Context, call Call) (Result, error)
}

// Call is one tool dispatch.
type Call struct {
	NodeID   string
	ToolType string
	Inputs   map[string]any
	APIKey   string
}

// Result is what a tool returns for telemetry/output purposes.
type Result struct {
	Output string
}

// searchWebTool and visitWebpageTool are named built-ins per spec §4.3. Their
// concrete search/browse behavior is an out-of-scope third-party integration
// (spec §1); these stand in as the fixed contract the engine dispatches to,
// mirroring the collaborator stub pattern used for the agent invoker.
type searchWebTool struct{}

func (searchWebTool) Invoke(_ context.Context, call Call) (Result, error) {
	query := stringInput(call.Inputs, "query")
	return Result{Output: fmt.Sprintf("search results for: %s", query)}, nil
}

type visitWebpageTool struct {
	guard     *URLGuard
	transport Transport
}

func (t visitWebpageTool) Invoke(ctx context.Context, call Call) (Result, error) {
	url := stringInput(call.Inputs, "url")
	if url == "" {
		return Result{}, fmt.Errorf("visit_webpage: missing url input")
	}
	if err := t.guard.Check(url); err != nil {
		return Result{}, err
	}
	resp, err := t.transport.Do(ctx, Request{Method: "GET", URL: url})
	if err != nil {
		return Result{}, err
	}
	return Result{Output: string(resp.Body)}, nil
}

func stringInput(inputs map[string]any, key string) string {
	if v, ok := inputs[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	// fall back to the upstream node's "result"/"default" value.
	if v, ok := inputs["result"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
