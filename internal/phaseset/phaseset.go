// Package phaseset defines the six-phase pipeline contract from spec.md
// §3/§4.9: for each phase, a dependency list, a resume flag, a prompt
// builder, and a postprocessor. Every phase is a pure function of
// (config, upstream artifacts, repo state) modulo the LLM response itself.
package phaseset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/specpipe/core/internal/config"
	"github.com/specpipe/core/internal/fixup"
	"github.com/specpipe/core/internal/specerr"
)

// Name identifies one phase in the fixed ordered enumeration.
type Name string

const (
	Requirements Name = "requirements"
	Design       Name = "design"
	Tasks        Name = "tasks"
	Review       Name = "review"
	Fixup        Name = "fixup"
	Final        Name = "final"
)

// ArtifactSet maps a logical on-disk filename (e.g.
// "00-requirements.md") to its raw, not-yet-canonicalized content.
type ArtifactSet map[string][]byte

// Context is everything a phase's BuildPrompt/Postprocess needs beyond the
// LLM's own response: the spec identity, effective config, the user's
// original idea text, and the content of every upstream phase's committed
// artifacts (never the current phase's own, which doesn't exist yet).
type Context struct {
	SpecID    string
	Idea      string
	Config    *config.Config
	Artifacts map[Name]ArtifactSet
}

// Output is what a phase's Postprocess step extracts from one raw LLM
// reply: the artifacts to canonicalize and commit, any diffs (Review
// only) for the Fixup phase to act on, and non-fatal warnings to surface
// on the receipt.
type Output struct {
	Artifacts ArtifactSet
	Diffs     []string
	Warnings  []string
}

// Phase is one node of the phase DAG.
type Phase struct {
	Name        Name
	Ordinal     int
	DependsOn   []Name
	Resumable   bool
	BuildPrompt func(ctx *Context) (string, error)
	Postprocess func(ctx *Context, raw string) (*Output, error)
}

// baseName returns the artifact filename stem for a phase, e.g.
// "00-requirements".
func baseName(ordinal int, name Name) string {
	return fmt.Sprintf("%02d-%s", ordinal, name)
}

// All returns the six phases in dependency (and execution) order.
func All() []Phase {
	return []Phase{
		requirementsPhase(),
		designPhase(),
		tasksPhase(),
		reviewPhase(),
		fixupPhase(),
		finalPhase(),
	}
}

var (
	markdownFenceRe = regexp.MustCompile("(?s)```markdown\\s*\\n(.*?)\\n?```")
	yamlFenceRe     = regexp.MustCompile("(?s)```(?:yaml|yml)\\s*\\n(.*?)\\n?```")
)

// extractMarkdownAndYAML pulls the single required markdown artifact and
// the single required core.yaml summary out of a phase's raw reply. Both
// fences are mandatory for every phase except Review, whose Postprocess
// wraps this with its own diff extraction.
func extractMarkdownAndYAML(raw, stem string) (ArtifactSet, error) {
	md := markdownFenceRe.FindStringSubmatch(raw)
	if md == nil {
		return nil, specerr.New(specerr.KindParse, "no fenced markdown block in reply for "+stem, "ensure the backend prompt requests a ```markdown fence")
	}
	yml := yamlFenceRe.FindStringSubmatch(raw)
	if yml == nil {
		return nil, specerr.New(specerr.KindParse, "no fenced yaml block in reply for "+stem, "ensure the backend prompt requests a ```yaml fence")
	}
	return ArtifactSet{
		stem + ".md":        []byte(md[1]),
		stem + ".core.yaml": []byte(yml[1]),
	}, nil
}

// upstreamSummary renders the names of every committed upstream artifact,
// used by BuildPrompt to tell the model what's already on disk (the
// content itself travels through the packet, not the prompt).
func upstreamSummary(ctx *Context, deps []Name) string {
	var b strings.Builder
	for _, d := range deps {
		set := ctx.Artifacts[d]
		for name := range set {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}

func requirementsPhase() Phase {
	const ordinal = 0
	stem := baseName(ordinal, Requirements)
	return Phase{
		Name: Requirements, Ordinal: ordinal, DependsOn: nil, Resumable: true,
		BuildPrompt: func(ctx *Context) (string, error) {
			return fmt.Sprintf(
				"Spec %q: draft the requirements phase from this idea:\n\n%s\n\n"+
					"Respond with a fenced ```markdown block named %s.md followed by a fenced "+
					"```yaml block named %s.core.yaml summarizing the requirements machine-readably.",
				ctx.SpecID, ctx.Idea, stem, stem), nil
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			artifacts, err := extractMarkdownAndYAML(raw, stem)
			if err != nil {
				return nil, err
			}
			return &Output{Artifacts: artifacts}, nil
		},
	}
}

func designPhase() Phase {
	const ordinal = 10
	stem := baseName(ordinal, Design)
	deps := []Name{Requirements}
	return Phase{
		Name: Design, Ordinal: ordinal, DependsOn: deps, Resumable: true,
		BuildPrompt: func(ctx *Context) (string, error) {
			return fmt.Sprintf(
				"Spec %q: produce the design phase building on these committed artifacts:\n%s\n"+
					"Respond with a fenced ```markdown block named %s.md followed by a fenced "+
					"```yaml block named %s.core.yaml summarizing the design machine-readably.",
				ctx.SpecID, upstreamSummary(ctx, deps), stem, stem), nil
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			artifacts, err := extractMarkdownAndYAML(raw, stem)
			if err != nil {
				return nil, err
			}
			return &Output{Artifacts: artifacts}, nil
		},
	}
}

func tasksPhase() Phase {
	const ordinal = 20
	stem := baseName(ordinal, Tasks)
	deps := []Name{Requirements, Design}
	return Phase{
		Name: Tasks, Ordinal: ordinal, DependsOn: deps, Resumable: true,
		BuildPrompt: func(ctx *Context) (string, error) {
			return fmt.Sprintf(
				"Spec %q: break the design into an actionable task list, building on:\n%s\n"+
					"Respond with a fenced ```markdown block named %s.md followed by a fenced "+
					"```yaml block named %s.core.yaml listing the tasks machine-readably.",
				ctx.SpecID, upstreamSummary(ctx, deps), stem, stem), nil
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			artifacts, err := extractMarkdownAndYAML(raw, stem)
			if err != nil {
				return nil, err
			}
			return &Output{Artifacts: artifacts}, nil
		},
	}
}

func reviewPhase() Phase {
	const ordinal = 30
	stem := baseName(ordinal, Review)
	deps := []Name{Requirements, Design, Tasks}
	return Phase{
		Name: Review, Ordinal: ordinal, DependsOn: deps, Resumable: true,
		BuildPrompt: func(ctx *Context) (string, error) {
			return fmt.Sprintf(
				"Spec %q: review the requirements, design, and tasks committed so far:\n%s\n"+
					"Respond with a fenced ```markdown block named %s.md summarizing findings, a "+
					"fenced ```yaml block named %s.core.yaml machine-readably, and, for every "+
					"concrete correction, a fenced ```diff block with standard --- / +++ / @@ "+
					"headers naming the file to change.",
				ctx.SpecID, upstreamSummary(ctx, deps), stem, stem), nil
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			artifacts, err := extractMarkdownAndYAML(raw, stem)
			if err != nil {
				return nil, err
			}
			diffs := fixup.ExtractDiffs(raw)
			var warnings []string
			if len(diffs) == 0 {
				warnings = append(warnings, "review produced no fixup diffs")
			}
			return &Output{Artifacts: artifacts, Diffs: diffs, Warnings: warnings}, nil
		},
	}
}

// fixupPhase has no BuildPrompt/Postprocess of its own: the Fixup phase
// never invokes the backend. The orchestrator recognizes Name==Fixup and
// instead feeds the Review phase's collected Diffs directly into
// internal/fixup, per spec.md §4.8's "input: the review phase's raw
// output".
func fixupPhase() Phase {
	const ordinal = 40
	return Phase{
		Name: Fixup, Ordinal: ordinal, DependsOn: []Name{Review}, Resumable: false,
		BuildPrompt: func(ctx *Context) (string, error) {
			return "", specerr.New(specerr.KindConfig, "fixup phase does not invoke a backend", "the orchestrator must special-case Name==Fixup")
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			return nil, specerr.New(specerr.KindConfig, "fixup phase does not postprocess LLM output", "the orchestrator must special-case Name==Fixup")
		},
	}
}

func finalPhase() Phase {
	const ordinal = 50
	stem := baseName(ordinal, Final)
	deps := []Name{Requirements, Design, Tasks, Review, Fixup}
	return Phase{
		Name: Final, Ordinal: ordinal, DependsOn: deps, Resumable: true,
		BuildPrompt: func(ctx *Context) (string, error) {
			return fmt.Sprintf(
				"Spec %q: synthesize the final artifact from everything committed so far:\n%s\n"+
					"Respond with a fenced ```markdown block named %s.md followed by a fenced "+
					"```yaml block named %s.core.yaml summarizing the final state machine-readably.",
				ctx.SpecID, upstreamSummary(ctx, deps), stem, stem), nil
		},
		Postprocess: func(ctx *Context, raw string) (*Output, error) {
			artifacts, err := extractMarkdownAndYAML(raw, stem)
			if err != nil {
				return nil, err
			}
			return &Output{Artifacts: artifacts}, nil
		},
	}
}
