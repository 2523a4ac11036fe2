// Package packet assembles the bounded, redacted, fingerprinted context
// submitted to the LLM for a single phase, per spec.md §4.5.
package packet

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/specpipe/core/internal/canonical"
	"github.com/specpipe/core/internal/redact"
	"github.com/specpipe/core/internal/sandbox"
	"github.com/specpipe/core/internal/selector"
	"github.com/specpipe/core/internal/specerr"
)

// Budget bounds packet size.
type Budget struct {
	MaxBytes int
	MaxLines int
}

// Evidence is the per-file metadata recorded in a packet and mirrored
// into receipts.
type Evidence struct {
	Path                  string
	LineRange             string // "" if the file was included whole.
	PreRedactionFingerprint string
	Priority              string
}

// Packet is the immutable bundle submitted to the LLM backend.
type Packet struct {
	Content     []byte
	Fingerprint string
	Evidence    []Evidence
	BytesUsed   int
	LinesUsed   int
}

// Build assembles a packet from files (already selected and classified by
// the selector package) within budget, redacting every file's content
// before inclusion via catalogue and recording scan evidence from the
// original content. Secret detection in any included file aborts the
// build with KindSecret. A single Upstream file exceeding budget aborts
// with KindPacketOverflow.
func Build(root *sandbox.Root, files []selector.File, budget Budget, catalogue *redact.Catalogue) (*Packet, error) {
	ordered := orderForAssembly(files)

	var buf bytes.Buffer
	var evidence []Evidence
	linesUsed := 0

	for _, f := range ordered {
		full, err := root.Join(f.Path)
		if err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			return nil, specerr.Wrap(specerr.KindIO, "reading "+f.Path+" for packet inclusion", "", err)
		}

		if matches := catalogue.Scan(raw); len(matches) > 0 {
			m := matches[0]
			return nil, specerr.New(specerr.KindSecret, fmt.Sprintf("secret pattern %q detected in %s at byte range [%d,%d)", m.PatternID, f.Path, m.Start, m.End), "remove the secret or add its pattern to ignore_patterns if it is a false positive")
		}

		redacted := catalogue.Redact(raw)
		preFingerprint := canonical.Fingerprint(raw)

		header := []byte(fmt.Sprintf("----- file: %s (priority: %s) -----\n", f.Path, f.Priority))

		remainingBytes := budget.MaxBytes - buf.Len() - len(header)
		remainingLines := budget.MaxLines - linesUsed - 1 // header counts as a line

		var content []byte
		var truncatedTo int
		if f.Priority == selector.PriorityUpstream {
			// Upstream files are never truncated: either the whole file
			// fits in what budget remains, or the build fails outright.
			wholeLines := strings.Count(string(redacted), "\n") + 1
			if remainingBytes <= 0 || remainingLines <= 0 || len(redacted) > remainingBytes || wholeLines > remainingLines {
				return nil, specerr.New(specerr.KindPacketOverflow, fmt.Sprintf("upstream file %s (%d bytes) exceeds remaining packet budget", f.Path, len(redacted)), "raise packet_max_bytes/packet_max_lines or shrink the upstream file")
			}
			content = redacted
		} else {
			var fits bool
			content, truncatedTo, fits = fitToBudget(redacted, remainingBytes, remainingLines)
			if !fits {
				break
			}
		}

		buf.Write(header)
		buf.Write(content)
		if len(content) == 0 || content[len(content)-1] != '\n' {
			buf.WriteByte('\n')
		}

		lineCount := strings.Count(string(content), "\n")
		linesUsed += 1 + lineCount

		ev := Evidence{Path: f.Path, PreRedactionFingerprint: preFingerprint, Priority: f.Priority.String()}
		if truncatedTo > 0 {
			ev.LineRange = fmt.Sprintf("L1-L%d", truncatedTo)
		}
		evidence = append(evidence, ev)

		if buf.Len() >= budget.MaxBytes || linesUsed >= budget.MaxLines {
			break
		}
	}

	return &Packet{
		Content:     buf.Bytes(),
		Fingerprint: canonical.Fingerprint(buf.Bytes()),
		Evidence:    evidence,
		BytesUsed:   buf.Len(),
		LinesUsed:   linesUsed,
	}, nil
}

// orderForAssembly concatenates priority classes in Upstream, High,
// Medium, Low order; within each class files are reversed so the
// most-recently-surfaced file (last one the selector walk yielded) comes
// first, matching spec.md §4.5's eviction order.
func orderForAssembly(files []selector.File) []selector.File {
	groups := selector.GroupByPriority(files)
	var out []selector.File
	for _, p := range selector.SortedPriorities() {
		class := groups[p]
		for i := len(class) - 1; i >= 0; i-- {
			out = append(out, class[i])
		}
	}
	return out
}

// fitToBudget truncates content to the nearest line boundary fitting
// within maxBytes/maxLines. It reports fits=false only when even an empty
// inclusion would not fit (i.e. the budget is already exhausted) or when
// not a single full line fits and the content is non-empty; ok=true with
// a partial result is a deliberate truncation, not a failure.
func fitToBudget(content []byte, maxBytes, maxLines int) (out []byte, truncatedToLine int, fits bool) {
	if maxBytes <= 0 || maxLines <= 0 {
		return nil, 0, false
	}
	if len(content) <= maxBytes && strings.Count(string(content), "\n")+1 <= maxLines {
		return content, 0, true
	}

	lines := strings.SplitAfter(string(content), "\n")
	var b bytes.Buffer
	count := 0
	for _, l := range lines {
		if l == "" {
			continue
		}
		if b.Len()+len(l) > maxBytes || count+1 > maxLines {
			break
		}
		b.WriteString(l)
		count++
	}
	if count == 0 {
		return nil, 0, false
	}
	return b.Bytes(), count, true
}
