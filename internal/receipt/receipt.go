// Package receipt defines the per-phase audit record and its canonical
// JSON serialization, per spec.md §4.6. A phase invocation produces
// exactly one Receipt; receipts are immutable once written and a rerun
// appends a new one under a monotonic ordinal.
package receipt

import (
	"time"

	"github.com/google/uuid"

	"github.com/specpipe/core/internal/canonical"
	"github.com/specpipe/core/internal/packet"
	"github.com/specpipe/core/internal/specerr"
)

// Receipt is the audit record for one phase invocation.
type Receipt struct {
	SpecID                  string            `json:"spec_id"`
	AttemptID               string            `json:"attempt_id"`
	Phase                   string            `json:"phase"`
	Ordinal                 int               `json:"ordinal"`
	Timestamp               time.Time         `json:"timestamp"`
	ToolVersion             string            `json:"tool_version"`
	BackendName             string            `json:"backend_name"`
	BackendVersion          string            `json:"backend_version"`
	Model                   string            `json:"model"`
	ModelAlias              string            `json:"model_alias,omitempty"`
	CanonicalizationVersion string            `json:"canonicalization_version"`
	Flags                   map[string]string `json:"flags"`
	RunnerMode              string            `json:"runner_mode"`
	OSContainerDistro       string            `json:"os_container_distro,omitempty"`
	PromptFingerprint       string            `json:"prompt_fingerprint"`
	PacketFingerprint       string            `json:"packet_fingerprint"`
	PacketEvidence          []packet.Evidence `json:"packet_evidence"`
	OutputFingerprints      map[string]string `json:"output_fingerprints"`
	ExitCode                int               `json:"exit_code"`
	StderrTail              string            `json:"stderr_tail"`
	Warnings                []string          `json:"warnings,omitempty"`
	FallbackUsed            bool              `json:"fallback_used"`
}

// NewAttemptID mints a fresh identifier for one phase invocation attempt,
// distinct from the spec id and the monotonic ordinal: two retries of the
// same phase share a spec id and get successive ordinals, but each gets
// its own attempt id so logs from a single attempt can be correlated.
func NewAttemptID() string {
	return uuid.NewString()
}

// maxStderrTail is spec.md §3's 2 KiB cap on the redacted stderr tail
// stored in a receipt.
const maxStderrTail = 2048

// TruncateStderr applies the 2 KiB cap, keeping the tail (most recent
// output) since that is what's most useful for diagnosing a failure.
// Callers must redact s through the secret catalogue before calling this;
// TruncateStderr only bounds length, it does not scan for secrets.
func TruncateStderr(s string) string {
	if len(s) <= maxStderrTail {
		return s
	}
	return s[len(s)-maxStderrTail:]
}

// Canonicalize renders r as canonical JSON (sorted keys, no insignificant
// whitespace) and returns both the bytes to write and their fingerprint.
func Canonicalize(r *Receipt) ([]byte, string, error) {
	body, err := canonical.JSON(r)
	if err != nil {
		return nil, "", specerr.Wrap(specerr.KindCanonicalization, "canonicalizing receipt", "", err)
	}
	return body, canonical.Fingerprint(body), nil
}
