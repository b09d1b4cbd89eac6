package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/orchestrator/internal/dispatch/tools"
)

func TestURLGuard_BlocksLoopbackHostname(t *testing.T) {
	g := tools.NewURLGuard()
	assert.Error(t, g.Check("http://localhost/anything"))
	assert.Error(t, g.Check("http://127.0.0.1/anything"))
}

func TestURLGuard_BlocksNonHTTPScheme(t *testing.T) {
	g := tools.NewURLGuard()
	assert.Error(t, g.Check("ftp://example.invalid/file"))
	assert.Error(t, g.Check("file:///etc/passwd"))
}

func TestURLGuard_BlocksPathTraversal(t *testing.T) {
	g := tools.NewURLGuard()
	assert.Error(t, g.Check("https://example.invalid/../../etc/passwd"))
}

func TestURLGuard_BlocksSensitivePathPrefix(t *testing.T) {
	g := tools.NewURLGuard()
	assert.Error(t, g.Check("https://example.invalid/etc/shadow"))
}

func TestURLGuard_AllowsOrdinaryHTTPSURL(t *testing.T) {
	g := tools.NewURLGuard()
	assert.NoError(t, g.Check("https://example.invalid/search?q=test"))
}

func TestURLGuard_BlocksSensitiveQueryParam(t *testing.T) {
	g := tools.NewURLGuard()
	assert.Error(t, g.Check("https://example.invalid/fetch?path=../../etc/passwd"))
}
