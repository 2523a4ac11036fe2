// Package orchestrator drives the phase DAG described in spec.md §4.9:
// per spec, it acquires the exclusive lock, computes the effective
// configuration's consequences for each phase, builds prompts and
// packets, invokes the configured LlmBackend (with fallback), runs the
// FixupEngine for the Fixup phase, writes artifacts and receipts through
// the sandboxed atomic-write path, and decides the next step
// (Continue/Rewind/Complete).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/specpipe/core/internal/canonical"
	"github.com/specpipe/core/internal/config"
	"github.com/specpipe/core/internal/fixup"
	"github.com/specpipe/core/internal/llmbackend"
	"github.com/specpipe/core/internal/lock"
	"github.com/specpipe/core/internal/logging"
	"github.com/specpipe/core/internal/packet"
	"github.com/specpipe/core/internal/phaseset"
	"github.com/specpipe/core/internal/receipt"
	"github.com/specpipe/core/internal/redact"
	"github.com/specpipe/core/internal/sandbox"
	"github.com/specpipe/core/internal/selector"
	"github.com/specpipe/core/internal/specerr"
	"github.com/specpipe/core/internal/specstate"

	"go.uber.org/zap"
)

// ToolVersion is stamped onto every receipt this build produces.
const ToolVersion = "0.1.0"

// StepKind is the decision the orchestrator makes after each phase
// commits.
type StepKind int

const (
	StepContinue StepKind = iota
	StepRewind
	StepComplete
)

// NextStep is the orchestrator's decision after a phase completes.
type NextStep struct {
	Kind     StepKind
	RewindTo phaseset.Name
}

// Options configures one Orchestrator. Backend/Fallback/HTTPBudget are
// supplied by the CLI collaborator after resolving llm_provider/
// llm_fallback from EffectiveConfig; RunnerMode and OSContainerDistro are
// recorded verbatim on every receipt.
type Options struct {
	SpecID            string
	Idea              string
	Config            *config.Config
	// Sources is the per-field provenance map config.Load returned
	// alongside Config. It is recorded verbatim into every receipt's
	// Flags so an auditor can see not just the effective value of every
	// recognized option but which layer (default/config/env/
	// programmatic/cli) set it. May be nil, in which case every field is
	// reported with an empty source.
	Sources           config.Sources
	RepoRoot          *sandbox.Root
	StateRoot         string
	Backend           llmbackend.Backend
	Fallback          llmbackend.Backend
	AllowStaleLock    bool
	OSContainerDistro string
	Logger            *zap.SugaredLogger
}

// Orchestrator owns the lock, the state directory, and the active
// receipt builder for the duration of one invocation.
type Orchestrator struct {
	opts      Options
	state     *specstate.Dir
	catalogue *redact.Catalogue
	log       *zap.SugaredLogger
}

// New validates options and prepares the spec's state directory without
// acquiring the lock yet (the lock is acquired per Run call).
func New(opts Options) (*Orchestrator, error) {
	if opts.SpecID == "" {
		return nil, specerr.New(specerr.KindConfig, "spec id is required", "pass a non-empty spec id")
	}
	if opts.Backend == nil {
		return nil, specerr.New(specerr.KindConfig, "a primary LLM backend is required", "configure llm_provider")
	}
	state, err := specstate.Open(opts.StateRoot, opts.SpecID)
	if err != nil {
		return nil, err
	}
	catalogue, err := redact.New(opts.Config.ExtraPatterns, opts.Config.IgnorePatterns)
	if err != nil {
		return nil, specerr.Wrap(specerr.KindConfig, "building redaction catalogue", "check extra_patterns regular expressions", err)
	}
	log := opts.Logger
	if log == nil {
		log = logging.For(logging.Noop(), logging.CategoryOrchestrator)
	}
	return &Orchestrator{opts: opts, state: state, catalogue: catalogue, log: log}, nil
}

// Run acquires the spec's lock, resumes from the first non-committed
// phase (or the beginning, on a fresh spec), and drives the phase DAG to
// completion, rewinding as fixups land. It returns the final status
// snapshot. The lock is released on every return path.
func (o *Orchestrator) Run(ctx context.Context) (*specstate.Status, error) {
	handle, err := lock.Acquire(o.state.LockPath(), o.opts.AllowStaleLock)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	phases := phaseset.All()
	artifacts := make(map[phaseset.Name]phaseset.ArtifactSet, len(phases))
	var reviewDiffs []string

	start := o.resumeIndex(phases)

	for i := start; i < len(phases); i++ {
		p := phases[i]

		if err := ctx.Err(); err != nil {
			return o.writeCancelled(p.Name)
		}

		for _, dep := range p.DependsOn {
			set, ok := artifacts[dep]
			if !ok {
				set = o.loadCommitted(dep, phases)
				artifacts[dep] = set
			}
		}

		var step NextStep
		if p.Name == phaseset.Fixup {
			step, err = o.runFixupPhase(p, reviewDiffs)
		} else {
			var out *phaseset.Output
			out, step, err = o.runLLMPhase(ctx, p, artifacts)
			if out != nil {
				artifacts[p.Name] = out.Artifacts
				if p.Name == phaseset.Review {
					reviewDiffs = out.Diffs
				}
			}
		}
		if err != nil {
			return o.writeFailure(p.Name, err)
		}

		switch step.Kind {
		case StepRewind:
			if err := o.rewind(phases, step.RewindTo); err != nil {
				return nil, err
			}
			artifacts = make(map[phaseset.Name]phaseset.ArtifactSet, len(phases))
			reviewDiffs = nil
			i = o.indexOf(phases, step.RewindTo) - 1
		case StepComplete:
			status := &specstate.Status{SpecID: o.opts.SpecID, Phase: string(p.Name), UpdatedAt: now(), ExitCode: 0}
			return status, o.state.WriteStatus(status)
		}
	}

	status := &specstate.Status{SpecID: o.opts.SpecID, Phase: string(phases[len(phases)-1].Name), UpdatedAt: now(), ExitCode: 0}
	return status, o.state.WriteStatus(status)
}

// resumeIndex finds the first phase with no committed receipt yet, per
// spec.md §4.9's resume contract.
func (o *Orchestrator) resumeIndex(phases []phaseset.Phase) int {
	for i, p := range phases {
		if _, _, ok, _ := o.state.LatestReceipt(string(p.Name)); !ok {
			return i
		}
	}
	return len(phases)
}

// loadCommitted reconstructs an ArtifactSet for an already-committed
// upstream phase from disk, used when resuming mid-run.
func (o *Orchestrator) loadCommitted(name phaseset.Name, phases []phaseset.Phase) phaseset.ArtifactSet {
	set := phaseset.ArtifactSet{}
	for _, p := range phases {
		if p.Name != name || name == phaseset.Fixup {
			continue
		}
		stem := fmt.Sprintf("%02d-%s", p.Ordinal, p.Name)
		for _, suffix := range []string{".md", ".core.yaml"} {
			if content, ok, _ := o.state.ReadArtifact(stem + suffix); ok {
				set[stem+suffix] = content
			}
		}
	}
	return set
}

func (o *Orchestrator) indexOf(phases []phaseset.Phase, name phaseset.Name) int {
	for i, p := range phases {
		if p.Name == name {
			return i
		}
	}
	return 0
}

// runLLMPhase builds the prompt and packet, invokes the backend (with
// fallback), postprocesses the reply, canonicalizes and commits every
// artifact, and writes the phase's receipt.
func (o *Orchestrator) runLLMPhase(ctx context.Context, p phaseset.Phase, artifacts map[phaseset.Name]phaseset.ArtifactSet) (*phaseset.Output, NextStep, error) {
	phaseCtx := &phaseset.Context{SpecID: o.opts.SpecID, Idea: o.opts.Idea, Config: o.opts.Config, Artifacts: artifacts}

	prompt, err := p.BuildPrompt(phaseCtx)
	if err != nil {
		return nil, NextStep{}, err
	}

	files, err := selector.Walk(o.opts.RepoRoot, selector.Options{Include: o.opts.Config.Include, Exclude: o.opts.Config.Exclude})
	if err != nil {
		return nil, NextStep{}, err
	}
	budget := packet.Budget{MaxBytes: o.opts.Config.PacketMaxBytes, MaxLines: o.opts.Config.PacketMaxLines}
	pkt, err := packet.Build(o.opts.RepoRoot, files, budget, o.catalogue)
	if err != nil {
		return nil, NextStep{}, err
	}

	invokeCtx, cancel := context.WithTimeout(ctx, o.opts.Config.PhaseTimeout)
	defer cancel()

	attempts, resp, err := llmbackend.InvokeWithFallback(invokeCtx, o.opts.Backend, o.opts.Fallback, prompt, pkt.Content, llmbackend.Controls{})
	if err != nil {
		o.writePartialAndReceipt(p, pkt, attempts, resp, err)
		return nil, NextStep{}, err
	}

	out, err := p.Postprocess(phaseCtx, resp.Content)
	if err != nil {
		o.writePartialAndReceipt(p, pkt, attempts, resp, err)
		return nil, NextStep{}, err
	}

	fingerprints := map[string]string{}
	for name, content := range out.Artifacts {
		kind := canonical.KindMarkdown
		if hasSuffix(name, ".core.yaml") {
			kind = canonical.KindYAML
		}
		result, err := canonical.Canonicalize(kind, content)
		if err != nil {
			return nil, NextStep{}, specerr.Wrap(specerr.KindCanonicalization, "canonicalizing artifact "+name, "", err)
		}
		if err := o.state.WriteArtifact(name, result.Canonical); err != nil {
			return nil, NextStep{}, err
		}
		fingerprints[name] = result.Fingerprint
	}

	if err := o.writeReceipt(p, pkt, prompt, attempts, resp, fingerprints, out.Warnings, nil); err != nil {
		return nil, NextStep{}, err
	}

	next := NextStep{Kind: StepContinue}
	if p.Name == phaseset.Final {
		next = NextStep{Kind: StepComplete}
	}
	return out, next, nil
}

// runFixupPhase runs the FixupEngine over the Review phase's collected
// diffs, never invoking the backend. A successful apply triggers
// Rewind{to: Requirements} so downstream phases re-read the modified
// inputs, per spec.md §4.8.
func (o *Orchestrator) runFixupPhase(p phaseset.Phase, diffs []string) (NextStep, error) {
	raw := joinDiffs(diffs)
	engine := fixup.NewEngine(o.opts.RepoRoot)

	var result *fixup.Result
	var err error
	if o.opts.Config.ApplyFixups {
		result, err = engine.Apply(raw)
	} else {
		result, err = engine.Preview(raw)
	}
	if err != nil {
		return NextStep{}, err
	}

	var warnings []string
	for _, fr := range result.Files {
		warnings = append(warnings, fr.Warnings...)
	}

	receiptBody := &receipt.Receipt{
		SpecID: o.opts.SpecID, AttemptID: receipt.NewAttemptID(), Phase: string(p.Name), Timestamp: now(),
		ToolVersion: ToolVersion, CanonicalizationVersion: canonical.Version,
		RunnerMode: o.opts.Config.RunnerMode, OSContainerDistro: o.opts.OSContainerDistro,
		Flags: config.Flags(o.opts.Config, o.opts.Sources),
		Warnings: warnings, ExitCode: 0,
	}
	if err := o.commitReceipt(p.Name, receiptBody); err != nil {
		return NextStep{}, err
	}

	if result.Applied {
		return NextStep{Kind: StepRewind, RewindTo: phaseset.Requirements}, nil
	}
	return NextStep{Kind: StepContinue}, nil
}

// rewind removes every artifact and receipt strictly from `to` onward
// (inclusive), never touching earlier phases' history, per spec.md §4.9
// and §5's "prior receipts are retained, never mutated" invariant.
func (o *Orchestrator) rewind(phases []phaseset.Phase, to phaseset.Name) error {
	idx := o.indexOf(phases, to)
	var names []string
	for _, p := range phases[idx:] {
		names = append(names, string(p.Name))
		if p.Name == phaseset.Fixup {
			continue
		}
		stem := fmt.Sprintf("%02d-%s", p.Ordinal, p.Name)
		for _, suffix := range []string{".md", ".core.yaml"} {
			if err := o.state.RemoveArtifact(stem + suffix); err != nil {
				return err
			}
		}
	}
	return o.state.RemoveReceiptsFrom(names)
}

// writeReceipt canonicalizes and commits a successful phase's receipt.
func (o *Orchestrator) writeReceipt(p phaseset.Phase, pkt *packet.Packet, prompt string, attempts []llmbackend.Attempt, resp llmbackend.Response, fingerprints map[string]string, warnings []string, forcedExit *int) error {
	backendName, backendVersion := "", ""
	if len(attempts) > 0 {
		backendName = attempts[len(attempts)-1].BackendName
	}
	if o.opts.Backend != nil {
		backendName, backendVersion = o.opts.Backend.Version()
	}
	exitCode := resp.ExitCode
	if forcedExit != nil {
		exitCode = *forcedExit
	}

	r := &receipt.Receipt{
		SpecID: o.opts.SpecID, AttemptID: receipt.NewAttemptID(), Phase: string(p.Name), Timestamp: now(),
		ToolVersion: ToolVersion, BackendName: backendName, BackendVersion: backendVersion,
		CanonicalizationVersion: canonical.Version,
		Flags:                   config.Flags(o.opts.Config, o.opts.Sources),
		RunnerMode:              o.opts.Config.RunnerMode, OSContainerDistro: o.opts.OSContainerDistro,
		PromptFingerprint:       canonical.Fingerprint([]byte(prompt)),
		PacketFingerprint:       pkt.Fingerprint,
		PacketEvidence:          pkt.Evidence,
		OutputFingerprints:      fingerprints,
		ExitCode:                exitCode,
		StderrTail:              receipt.TruncateStderr(string(o.catalogue.Redact([]byte(resp.StderrTail)))),
		Warnings:                warnings,
		FallbackUsed:            resp.FallbackUsed,
	}
	return o.commitReceipt(p.Name, r)
}

// writePartialAndReceipt records a partial artifact (whatever content was
// received before failure) plus a failure receipt, per spec.md §7's
// recovery rule, then returns the triggering error unchanged so the
// caller can classify and surface it.
func (o *Orchestrator) writePartialAndReceipt(p phaseset.Phase, pkt *packet.Packet, attempts []llmbackend.Attempt, resp llmbackend.Response, cause error) {
	if resp.Content != "" {
		stem := fmt.Sprintf("%02d-%s.partial", p.Ordinal, p.Name)
		_ = o.state.WriteArtifact(stem, []byte(resp.Content))
	}
	kind, _ := specerr.KindOf(cause)
	exitCode := specerr.ExitCode(kind)
	_ = o.writeReceipt(p, pkt, "", attempts, resp, map[string]string{}, []string{cause.Error()}, &exitCode)
}

func (o *Orchestrator) writeFailure(name phaseset.Name, cause error) (*specstate.Status, error) {
	kind, _ := specerr.KindOf(cause)
	status := &specstate.Status{SpecID: o.opts.SpecID, Phase: string(name), UpdatedAt: now(), ExitCode: specerr.ExitCode(kind)}
	_ = o.state.WriteStatus(status)
	return nil, cause
}

func (o *Orchestrator) writeCancelled(name phaseset.Name) (*specstate.Status, error) {
	err := specerr.New(specerr.KindCancelled, "phase "+string(name)+" cancelled", "rerun once the cancellation cause is resolved")
	status := &specstate.Status{SpecID: o.opts.SpecID, Phase: string(name), UpdatedAt: now(), ExitCode: specerr.ExitCode(specerr.KindCancelled)}
	_ = o.state.WriteStatus(status)
	return nil, err
}

// commitReceipt canonicalizes r, assigns the next ordinal, and writes it
// atomically.
func (o *Orchestrator) commitReceipt(phase phaseset.Name, r *receipt.Receipt) error {
	ord, err := o.state.NextOrdinal(string(phase))
	if err != nil {
		return err
	}
	r.Ordinal = ord
	body, _, err := receipt.Canonicalize(r)
	if err != nil {
		return err
	}
	return o.state.WriteReceipt(string(phase), ord, body)
}

func joinDiffs(diffs []string) string {
	var joined string
	for _, d := range diffs {
		joined += d + "\n"
	}
	return joined
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// now is the single source of wall-clock time in this package so tests
// can exercise determinism by controlling inputs, not the clock.
func now() time.Time { return time.Now().UTC() }
