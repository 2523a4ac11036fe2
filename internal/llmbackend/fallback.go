package llmbackend

import (
	"context"

	"github.com/specpipe/core/internal/specerr"
)

// InvokeWithFallback submits the identical prompt and packet to primary
// first; if that invocation fails with a classified transient error
// (KindBackend or KindTimeout) and secondary is non-nil, it retries once
// against secondary. Both attempts are reported so the caller can record
// them both on the receipt, matching spec.md §4.7's fallback contract.
type Attempt struct {
	BackendName string
	Response    Response
	Err         error
}

// InvokeWithFallback returns the attempts made (one or two, primary
// first) and the response/error to surface, which is the secondary's
// outcome if a fallback was attempted, else the primary's.
func InvokeWithFallback(ctx context.Context, primary, secondary Backend, prompt string, packetContent []byte, controls Controls) ([]Attempt, Response, error) {
	primaryName, _ := primary.Version()
	resp, err := primary.Invoke(ctx, prompt, packetContent, controls)
	attempts := []Attempt{{BackendName: primaryName, Response: resp, Err: err}}

	if err == nil || secondary == nil || !isTransient(err) {
		return attempts, resp, err
	}

	secondaryName, _ := secondary.Version()
	resp2, err2 := secondary.Invoke(ctx, prompt, packetContent, controls)
	resp2.FallbackUsed = true
	attempts = append(attempts, Attempt{BackendName: secondaryName, Response: resp2, Err: err2})
	return attempts, resp2, err2
}

// isTransient reports whether err is a classified transient backend
// failure eligible for fallback: a backend-kind or timeout-kind error.
// Usage-budget exhaustion and parse failures are never retried against a
// fallback backend since they are not backend-health signals.
func isTransient(err error) bool {
	kind, ok := specerr.KindOf(err)
	if !ok {
		return false
	}
	return kind == specerr.KindBackend || kind == specerr.KindTimeout
}
