package llmbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/specpipe/core/internal/specerr"
)

// envelope is what a CLIBackend writes to the subprocess's stdin: a single
// JSON document carrying the prompt and the already-redacted packet
// content, so the subprocess never needs shell-quoting of either.
type envelope struct {
	Prompt string `json:"prompt"`
	Packet string `json:"packet"`
}

// structuredReply is the first output format a CLIBackend attempts to
// parse from stdout.
type structuredReply struct {
	Content string `json:"content"`
}

// CLIBackend invokes a command-line LLM tool (e.g. "claude-cli",
// "gemini-cli") as a subprocess. Every invocation is built with
// exec.CommandContext from an explicit argv slice — no shell is ever
// involved, including when RunnerMode is an OS-container passthrough,
// matching spec.md §4.7 and the Argv-only-execution testable property.
// Grounded on the argv-construction discipline in
// internal/tools/shell/execute.go and the stdio handling in
// internal/mcp/transport_stdio.go from the reference codebase.
type CLIBackend struct {
	name           string
	version        string
	command        string
	baseArgs       []string
	structuredFlag string
	plainFlag      string
	resolveModel   func(ctx context.Context, alias string) (string, error)
}

// NewCLIBackend constructs a CLIBackend. resolveModel may be nil, in
// which case ResolveModel returns alias unchanged.
func NewCLIBackend(name, version, command string, baseArgs []string, structuredFlag, plainFlag string, resolveModel func(context.Context, string) (string, error)) *CLIBackend {
	return &CLIBackend{
		name: name, version: version, command: command, baseArgs: baseArgs,
		structuredFlag: structuredFlag, plainFlag: plainFlag, resolveModel: resolveModel,
	}
}

func (b *CLIBackend) Version() (string, string) { return b.name, b.version }

func (b *CLIBackend) ResolveModel(ctx context.Context, alias string) (string, error) {
	if b.resolveModel == nil {
		return alias, nil
	}
	return b.resolveModel(ctx, alias)
}

func (b *CLIBackend) Invoke(ctx context.Context, prompt string, packetContent []byte, controls Controls) (Response, error) {
	env := envelope{Prompt: prompt, Packet: string(packetContent)}
	stdin, err := json.Marshal(env)
	if err != nil {
		return Response{}, specerr.Wrap(specerr.KindBackend, "encoding CLI backend stdin envelope", "", err)
	}

	resp, err := b.run(ctx, b.structuredFlag, controls, stdin)
	if err != nil {
		return Response{}, err
	}

	var parsed structuredReply
	if jsonErr := json.Unmarshal([]byte(resp.Content), &parsed); jsonErr == nil && parsed.Content != "" {
		resp.Content = parsed.Content
		resp.OutputFormat = "structured"
		return resp, nil
	}

	// Structured parse failed: retry once in plain-text mode.
	plain, err := b.run(ctx, b.plainFlag, controls, stdin)
	if err != nil {
		return Response{}, err
	}
	plain.FallbackUsed = true
	plain.OutputFormat = "plain"
	return plain, nil
}

func (b *CLIBackend) run(ctx context.Context, formatFlag string, controls Controls, stdin []byte) (Response, error) {
	argv := append([]string{}, b.baseArgs...)
	if formatFlag != "" {
		argv = append(argv, formatFlag)
	}
	if controls.Model != "" {
		argv = append(argv, "--model", controls.Model)
	}
	if controls.MaxTurns > 0 {
		argv = append(argv, "--max-turns", fmt.Sprintf("%d", controls.MaxTurns))
	}
	if controls.PermissionMode != "" {
		argv = append(argv, "--permission-mode", string(controls.PermissionMode))
	}
	for _, tool := range controls.AllowedTools {
		argv = append(argv, "--allow-tool", tool)
	}
	for _, tool := range controls.DeniedTools {
		argv = append(argv, "--deny-tool", tool)
	}

	cmd := exec.CommandContext(ctx, b.command, argv...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() != nil {
			return Response{}, specerr.Wrap(specerr.KindTimeout, "CLI backend invocation timed out", "raise phase_timeout", ctx.Err())
		} else {
			return Response{}, specerr.Wrap(specerr.KindBackend, "starting CLI backend "+b.command, "confirm the backend binary is installed and on PATH", runErr)
		}
	}

	// Raw, untruncated and unredacted: the orchestrator redacts via its
	// secret catalogue and truncates to the receipt's 2 KiB tail cap
	// before this ever reaches disk.
	return Response{
		Content:    stdout.String(),
		StderrTail: stderr.String(),
		ExitCode:   exitCode,
	}, nil
}
