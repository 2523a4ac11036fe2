// Package canonical normalizes YAML, Markdown and plain text into a
// reproducible byte form and fingerprints the result with BLAKE3. Every
// hashable input and output in specpipe passes through this package so two
// runs over identical content produce byte-identical fingerprints.
package canonical

import (
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"github.com/specpipe/core/internal/specerr"
)

// Version is embedded in every receipt so a schema change to the
// normalization rules is always visible in the audit trail.
const Version = "yaml-v1,md-v1"

// Kind selects which normalization rules apply to a piece of content.
type Kind int

const (
	KindText Kind = iota
	KindMarkdown
	KindYAML
)

// Result is the canonical byte form plus its fingerprint.
type Result struct {
	// Canonical is the human-readable on-disk form: for YAML this is
	// line-ending-normalized, trailing-space-stripped YAML (not the JSON
	// form used for hashing); for Markdown/text it is the normalized
	// content itself.
	Canonical []byte
	// Fingerprint is the BLAKE3 hex digest over the hashing form: for YAML
	// that is RFC-8785-equivalent canonical JSON; for Markdown/text it is
	// taken directly over Canonical.
	Fingerprint string
}

// Canonicalize applies the rules for kind to content and returns the
// canonical on-disk form and its fingerprint.
func Canonicalize(kind Kind, content []byte) (Result, error) {
	switch kind {
	case KindYAML:
		return canonicalizeYAML(content)
	case KindMarkdown:
		out := canonicalizeMarkdown(normalizeText(content))
		return Result{Canonical: out, Fingerprint: fingerprint(out)}, nil
	default:
		out := normalizeText(content)
		return Result{Canonical: out, Fingerprint: fingerprint(out)}, nil
	}
}

// Fingerprint returns the BLAKE3 hex digest of raw bytes with no
// normalization applied, used for pre-redaction packet evidence and for
// fingerprinting the assembled, redacted packet buffer.
func Fingerprint(content []byte) string {
	return fingerprint(content)
}

func fingerprint(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// normalizeText implements the Text rule: \r\n and lone \r become \n, no
// other changes.
func normalizeText(content []byte) []byte {
	s := string(content)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}

var trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
var underlineH1Re = regexp.MustCompile(`(?m)^([^\n]+)\n=+[ \t]*$`)
var underlineH2Re = regexp.MustCompile(`(?m)^([^\n]+)\n-+[ \t]*$`)

// canonicalizeMarkdown implements the Markdown rule set: normalize line
// endings (already done by the caller), strip trailing spaces, collapse
// runs of trailing blank lines to one, convert underline-style headings to
// #-prefixed, preserve fenced code blocks verbatim, ensure exactly one
// trailing newline.
func canonicalizeMarkdown(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if fence != "" {
			lines[i] = line
			if strings.TrimSpace(line) == fence {
				fence = ""
			}
			continue
		}
		if m := fenceOpen(trimmed); m != "" {
			fence = m
			lines[i] = trimmed
			continue
		}
		lines[i] = trimmed
	}
	out := strings.Join(lines, "\n")

	out = underlineH1Re.ReplaceAllString(out, "# $1")
	out = underlineH2Re.ReplaceAllString(out, "## $1")

	out = strings.TrimRight(out, "\n") + "\n"
	return []byte(out)
}

// fenceOpen returns the fence marker ("```" or "~~~") if line opens a
// fenced code block, else "".
func fenceOpen(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	for _, marker := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, marker) {
			return marker
		}
	}
	return ""
}

// canonicalizeYAML implements the YAML rule: parse to a structured value,
// re-key recursively with sorted keys, and fingerprint the canonical JSON
// form. The on-disk form is left as human-readable YAML, only
// line-ending-normalized, trailing-space-stripped, with one trailing
// newline.
func canonicalizeYAML(content []byte) (Result, error) {
	var value interface{}
	if err := yaml.Unmarshal(content, &value); err != nil {
		return Result{}, specerr.Wrap(specerr.KindCanonicalization, "parsing YAML for canonicalization", "fix the YAML syntax and retry", err)
	}

	sorted := sortKeys(value)
	jcs, err := marshalCanonicalJSON(sorted)
	if err != nil {
		return Result{}, specerr.Wrap(specerr.KindCanonicalization, "marshaling canonical JSON form", "", err)
	}

	normalized := normalizeText(content)
	lines := strings.Split(string(normalized), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	disk := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"

	return Result{Canonical: []byte(disk), Fingerprint: fingerprint(jcs)}, nil
}

// sortKeys recursively converts map[string]interface{} (and
// map[interface{}]interface{}, as produced by yaml.v3 for some shapes)
// into a deterministically ordered representation suitable for JSON
// marshaling, whose map keys encoding/json always sorts lexicographically.
func sortKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = sortKeys(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[toString(k)] = sortKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = sortKeys(val)
		}
		return out
	default:
		return v
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(marshalFallback(v))
}

func marshalFallback(v interface{}) string {
	b, _ := marshalCanonicalJSON(v)
	return string(b)
}

// JSON renders v (typically a receipt or status struct) as canonical JSON:
// object members in sorted key order, no insignificant whitespace. It
// round-trips through encoding/json so it accepts any JSON-marshalable
// value, not just map[string]interface{}. Used by internal/receipt and
// internal/specstate so receipts and status snapshots hash reproducibly.
func JSON(v interface{}) ([]byte, error) {
	raw, err := marshalCanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalCanonicalJSON(sortKeys(generic))
}
