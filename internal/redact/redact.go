// Package redact implements the secret-detection catalogue used by the
// packet builder and by every receipt/stderr surface. It never records
// matched text, only a pattern id and a byte range, matching spec.md
// §4.2's confidentiality requirement.
package redact

import (
	"regexp"
)

// Match describes a single detected secret occurrence.
type Match struct {
	PatternID string
	Start     int
	End       int
}

// pattern is one entry in the built-in catalogue.
type pattern struct {
	id string
	re *regexp.Regexp
}

// defaultCatalogue is the allow-listed set of secret classes. Ordering is
// deterministic (declaration order) so Scan results are reproducible.
var defaultCatalogue = []pattern{
	{"aws_access_key_id", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"aws_secret_access_key", regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`)},
	{"gcp_api_key", regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{"generic_bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{20,}=*`)},
	{"generic_api_key_assignment", regexp.MustCompile(`(?i)\b(api[_-]?key|api[_-]?secret|access[_-]?token|auth[_-]?token)\b\s*[:=]\s*['"]?[A-Za-z0-9\-._~+/]{16,}['"]?`)},
	{"database_connection_string", regexp.MustCompile(`\b(postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"@]+@[^\s'"]+`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA |)PRIVATE KEY-----`)},
	{"openai_style_secret", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"github_token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
}

// marker replaces every detected match in redacted output.
const marker = "[REDACTED]"

// Catalogue holds the effective pattern set: the built-in catalogue plus
// extra_patterns, minus ignore_patterns, matching EffectiveConfig's
// extra_patterns/ignore_patterns overrides.
type Catalogue struct {
	patterns []pattern
	ignore   map[string]bool
}

// New builds a Catalogue. extraPatterns maps a caller-chosen pattern id to
// a regular expression string; ignorePatterns names built-in or extra
// pattern ids to suppress.
func New(extraPatterns map[string]string, ignorePatterns []string) (*Catalogue, error) {
	ignore := make(map[string]bool, len(ignorePatterns))
	for _, id := range ignorePatterns {
		ignore[id] = true
	}

	patterns := make([]pattern, 0, len(defaultCatalogue)+len(extraPatterns))
	for _, p := range defaultCatalogue {
		if !ignore[p.id] {
			patterns = append(patterns, p)
		}
	}
	for id, expr := range extraPatterns {
		if ignore[id] {
			continue
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pattern{id: id, re: re})
	}

	return &Catalogue{patterns: patterns, ignore: ignore}, nil
}

// Scan returns every match of every active pattern in content, without
// ever returning the matched text itself.
func (c *Catalogue) Scan(content []byte) []Match {
	var matches []Match
	for _, p := range c.patterns {
		locs := p.re.FindAllIndex(content, -1)
		for _, loc := range locs {
			matches = append(matches, Match{PatternID: p.id, Start: loc[0], End: loc[1]})
		}
	}
	return matches
}

// Redact returns content with every active-pattern match replaced by a
// fixed marker. It is safe to call Scan on the result: Scan(Redact(c)) is
// empty for every pattern not in ignore_patterns, since Redact uses the
// same pattern set as Scan.
func (c *Catalogue) Redact(content []byte) []byte {
	out := content
	for _, p := range c.patterns {
		out = p.re.ReplaceAll(out, []byte(marker))
	}
	return out
}
