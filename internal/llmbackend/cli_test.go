package llmbackend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeShellScript-free test: use "cat" as the backend command so it echoes
// stdin back verbatim. This exercises the argv-only exec path without
// depending on any real LLM CLI being installed.

func TestCLIBackend_FallsBackToPlainOnUnstructuredOutput(t *testing.T) {
	b := NewCLIBackend("echo-cli", "1.0.0", "cat", nil, "--structured", "--plain", nil)

	resp, err := b.Invoke(context.Background(), "do the thing", []byte("packet body"), Controls{Model: "test-model"})
	require.NoError(t, err)
	require.True(t, resp.FallbackUsed)
	require.Equal(t, "plain", resp.OutputFormat)
	require.Contains(t, resp.Content, "do the thing")
}

func TestCLIBackend_Version(t *testing.T) {
	b := NewCLIBackend("echo-cli", "1.0.0", "cat", nil, "", "", nil)
	name, version := b.Version()
	require.Equal(t, "echo-cli", name)
	require.Equal(t, "1.0.0", version)
}

func TestCLIBackend_ResolveModelDefaultsToAliasWhenUnset(t *testing.T) {
	b := NewCLIBackend("echo-cli", "1.0.0", "cat", nil, "", "", nil)
	resolved, err := b.ResolveModel(context.Background(), "alias-1")
	require.NoError(t, err)
	require.Equal(t, "alias-1", resolved)
}

func TestCLIBackend_NonexistentCommandIsBackendError(t *testing.T) {
	b := NewCLIBackend("missing-cli", "1.0.0", "this-binary-does-not-exist-xyz", nil, "", "", nil)
	_, err := b.Invoke(context.Background(), "p", []byte("pkt"), Controls{})
	require.Error(t, err)
}
