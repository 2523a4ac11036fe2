// Package llmbackend provides the uniform call surface over command-line
// and HTTP LLM providers described in spec.md §4.7: a small, closed set of
// tagged variants behind one interface, selected by config rather than by
// open inheritance (see spec.md §9, "Dynamic dispatch over backends").
package llmbackend

import "context"

// PermissionMode constrains what a CLI backend's invoked tool is allowed
// to do while producing its response.
type PermissionMode string

const (
	PermissionPlan  PermissionMode = "plan"
	PermissionAuto  PermissionMode = "auto"
	PermissionBlock PermissionMode = "block"
)

// Controls parametrizes one Invoke call.
type Controls struct {
	Model          string
	MaxTurns       int
	AllowedTools   []string
	DeniedTools    []string
	PermissionMode PermissionMode
}

// TokenUsage reports provider-side token accounting when the backend
// exposes it; nil when unavailable.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the uniform result of one Invoke call.
type Response struct {
	Content      string
	StderrTail   string
	ExitCode     int
	OutputFormat string
	FallbackUsed bool
	TokenUsage   *TokenUsage
}

// Backend is the capability every LLM provider variant implements.
type Backend interface {
	// Invoke submits prompt and the redacted packet content to the
	// backend and returns its response. ctx governs the phase_timeout.
	Invoke(ctx context.Context, prompt string, packetContent []byte, controls Controls) (Response, error)
	// Version returns the backend's name and version, captured once per
	// run and recorded on every receipt produced during that run.
	Version() (name string, version string)
	// ResolveModel expands a model alias to a full model identifier,
	// called once per run; both alias and resolved id are recorded.
	ResolveModel(ctx context.Context, alias string) (string, error)
}
