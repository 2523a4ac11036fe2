package llmbackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"

	"github.com/stretchr/testify/require"

	"github.com/specpipe/core/internal/specerr"
)

func TestHTTPBackend_SuccessParsesContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "do the thing", req.Prompt)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(httpReply{
			Content: "answer",
			Usage: &struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			}{PromptTokens: 10, CompletionTokens: 5},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend("test-provider", "1.0.0", srv.URL, "sk-test", 5*time.Second, NewBudget(0), nil)
	resp, err := b.Invoke(context.Background(), "do the thing", []byte("pkt"), Controls{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "answer", resp.Content)
	require.NotNil(t, resp.TokenUsage)
	require.Equal(t, 10, resp.TokenUsage.PromptTokens)
	require.Equal(t, 5, resp.TokenUsage.CompletionTokens)
}

func TestHTTPBackend_ErrorStatusIsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	b := NewHTTPBackend("test-provider", "1.0.0", srv.URL, "sk-bad", 5*time.Second, NewBudget(0), nil)
	resp, err := b.Invoke(context.Background(), "p", []byte("pkt"), Controls{})
	require.Error(t, err)
	kind, ok := specerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, specerr.KindBackend, kind)
	require.Equal(t, http.StatusUnauthorized, resp.ExitCode)
}

func TestHTTPBackend_BudgetExhaustedBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"content":"x"}`))
	}))
	defer srv.Close()

	budget := NewBudget(1)
	require.NoError(t, budget.Reserve())

	b := NewHTTPBackend("test-provider", "1.0.0", srv.URL, "sk-test", 5*time.Second, budget, nil)
	_, err := b.Invoke(context.Background(), "p", []byte("pkt"), Controls{})
	require.Error(t, err)
	kind, ok := specerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, specerr.KindBudgetExceeded, kind)
	require.False(t, called)
}

func TestHTTPBackend_ResolveModelUsesProvidedResolver(t *testing.T) {
	resolver := func(ctx context.Context, alias string) (string, error) {
		return "resolved-" + alias, nil
	}
	b := NewHTTPBackend("test-provider", "1.0.0", "http://unused", "", time.Second, NewBudget(0), resolver)
	resolved, err := b.ResolveModel(context.Background(), "fast")
	require.NoError(t, err)
	require.Equal(t, "resolved-fast", resolved)
}

func TestHTTPBackend_MalformedJSONIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	b := NewHTTPBackend("test-provider", "1.0.0", srv.URL, "", time.Second, NewBudget(0), nil)
	_, err := b.Invoke(context.Background(), "p", []byte("pkt"), Controls{})
	require.Error(t, err)
	kind, ok := specerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, specerr.KindParse, kind)
}
