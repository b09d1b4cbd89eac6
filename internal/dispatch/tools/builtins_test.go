package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/orchestrator/internal/dispatch/tools"
)

func TestRegistry_ResolvesBuiltins(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), nil, "https://backend.example.invalid")

	search := reg.Resolve("search_web")
	result, err := search.Invoke(context.Background(), tools.Call{Inputs: map[string]any{"query": "test"}})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "test")
}

func TestRegistry_CanonicalAliasesResolveToBuiltins(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), nil, "https://backend.example.invalid")
	// canonicalization happens in the validator; Registry.Resolve expects an
	// already-canonicalized tool_type, so this checks the canonical names
	// themselves are wired, not the raw aliases.
	assert.NotNil(t, reg.Resolve("search_web"))
	assert.NotNil(t, reg.Resolve("visit_webpage"))
}

func TestRegistry_UnknownToolTypeFallsBackToComposio(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), &fakeTransport{status: 200, body: "done"}, "https://backend.example.invalid")

	tool := reg.Resolve("some_third_party_action")
	result, err := tool.Invoke(context.Background(), tools.Call{ToolType: "some_third_party_action", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Output)
}

type fakeTransport struct {
	status int
	body   string
}

func (f *fakeTransport) Do(ctx context.Context, req tools.Request) (tools.Response, error) {
	return tools.Response{StatusCode: f.status, Body: []byte(f.body)}, nil
}

func TestVisitWebpageTool_MissingURL(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), &fakeTransport{status: 200}, "https://backend.example.invalid")
	tool := reg.Resolve("visit_webpage")

	_, err := tool.Invoke(context.Background(), tools.Call{Inputs: map[string]any{}})
	require.Error(t, err)
}

func TestVisitWebpageTool_BlockedBySSRFGuard(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), &fakeTransport{status: 200}, "https://backend.example.invalid")
	tool := reg.Resolve("visit_webpage")

	_, err := tool.Invoke(context.Background(), tools.Call{Inputs: map[string]any{"url": "http://127.0.0.1/admin"}})
	require.Error(t, err)
}

func TestVisitWebpageTool_AllowedURL(t *testing.T) {
	reg := tools.NewRegistry(tools.NewURLGuard(), &fakeTransport{status: 200, body: "page body"}, "https://backend.example.invalid")
	tool := reg.Resolve("visit_webpage")

	result, err := tool.Invoke(context.Background(), tools.Call{Inputs: map[string]any{"url": "https://example.invalid/page"}})
	require.NoError(t, err)
	assert.Equal(t, "page body", result.Output)
}
