package llmbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/specpipe/core/internal/specerr"
)

// Budget enforces the per-run HTTP call cap from spec.md §4.7. It is
// shared across every phase of one run (constructed once by the
// orchestrator and passed to every HTTPBackend it builds).
type Budget struct {
	mu    sync.Mutex
	max   int
	calls int
}

// NewBudget returns a Budget allowing up to max calls; max<=0 means
// unlimited.
func NewBudget(max int) *Budget { return &Budget{max: max} }

// Reserve consumes one call slot, returning a *specerr.Error with
// KindBudgetExceeded (exit code 70) if the budget is already exhausted.
func (b *Budget) Reserve() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && b.calls >= b.max {
		return specerr.New(specerr.KindBudgetExceeded, "HTTP call budget exhausted", "raise http_budget_calls or reduce the number of phases in this run")
	}
	b.calls++
	return nil
}

// Calls reports how many calls have been reserved so far.
func (b *Budget) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// httpRequest is the JSON body sent to the provider.
type httpRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Packet   string `json:"packet"`
	MaxTurns int    `json:"max_turns,omitempty"`
}

// httpReply is the JSON body expected back.
type httpReply struct {
	Content string `json:"content"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// HTTPBackend calls a provider (e.g. "openrouter", "anthropic") over
// HTTP. It wraps hashicorp/go-retryablehttp so transient network/5xx
// failures are retried a bounded number of times before being classified
// as a backend error eligible for the configured fallback, matching the
// *http.Client-with-timeout shape of internal/mcp/transport_http.go in
// the reference codebase.
type HTTPBackend struct {
	name       string
	version    string
	baseURL    string
	apiKeyEnv  string
	apiKey     string
	client     *retryablehttp.Client
	budget     *Budget
	resolveFn  func(ctx context.Context, alias string) (string, error)
}

// NewHTTPBackend constructs an HTTPBackend. apiKey is read from a
// well-known environment variable by the caller (spec.md §6: GEMINI_API_KEY,
// OPENROUTER_API_KEY, ANTHROPIC_API_KEY) and passed in explicitly — this
// package never reads credentials from flags or files itself.
func NewHTTPBackend(name, version, baseURL, apiKey string, timeout time.Duration, budget *Budget, resolveFn func(context.Context, string) (string, error)) *HTTPBackend {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	client.HTTPClient.Timeout = timeout

	return &HTTPBackend{
		name: name, version: version, baseURL: baseURL, apiKey: apiKey,
		client: client, budget: budget, resolveFn: resolveFn,
	}
}

func (b *HTTPBackend) Version() (string, string) { return b.name, b.version }

func (b *HTTPBackend) ResolveModel(ctx context.Context, alias string) (string, error) {
	if b.resolveFn == nil {
		return alias, nil
	}
	return b.resolveFn(ctx, alias)
}

func (b *HTTPBackend) Invoke(ctx context.Context, prompt string, packetContent []byte, controls Controls) (Response, error) {
	if b.budget != nil {
		if err := b.budget.Reserve(); err != nil {
			return Response{}, err
		}
	}

	body, err := json.Marshal(httpRequest{Model: controls.Model, Prompt: prompt, Packet: string(packetContent), MaxTurns: controls.MaxTurns})
	if err != nil {
		return Response{}, specerr.Wrap(specerr.KindBackend, "encoding HTTP backend request", "", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, specerr.Wrap(specerr.KindBackend, "building HTTP backend request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, specerr.Wrap(specerr.KindTimeout, "HTTP backend invocation timed out", "raise phase_timeout", ctx.Err())
		}
		return Response{}, specerr.Wrap(specerr.KindBackend, "calling HTTP backend "+b.name, "check network connectivity and the provider's status", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Response{}, specerr.Wrap(specerr.KindBackend, "reading HTTP backend response", "", err)
	}

	if resp.StatusCode >= 400 {
		// Raw, untruncated and unredacted: the orchestrator redacts via
		// its secret catalogue and truncates to the receipt's 2 KiB tail
		// cap before this ever reaches disk.
		return Response{
			ExitCode:   resp.StatusCode,
			StderrTail: string(raw),
		}, specerr.New(specerr.KindBackend, fmt.Sprintf("HTTP backend %s returned status %d", b.name, resp.StatusCode), "check the API key and request payload")
	}

	var reply httpReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Response{}, specerr.Wrap(specerr.KindParse, "parsing HTTP backend response", "", err)
	}

	out := Response{Content: reply.Content, ExitCode: 0, OutputFormat: "structured"}
	if reply.Usage != nil {
		out.TokenUsage = &TokenUsage{PromptTokens: reply.Usage.PromptTokens, CompletionTokens: reply.Usage.CompletionTokens}
	}
	return out, nil
}
