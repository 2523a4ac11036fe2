package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/config"
	"github.com/specpipe/core/internal/llmbackend"
	"github.com/specpipe/core/internal/logging"
	"github.com/specpipe/core/internal/orchestrator"
	"github.com/specpipe/core/internal/sandbox"
	"github.com/specpipe/core/internal/specerr"
)

var (
	applyFixups    bool
	llmProviderCLI string
	llmFallbackCLI string
	force          bool
	idea           string
	resumePhase    string
)

var specCmd = &cobra.Command{
	Use:   "spec <id>",
	Short: "run the full pipeline for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "continue a spec from the first non-committed phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resumePhase != "" {
			if _, ok := phaseRank[resumePhase]; !ok {
				return specerr.New(specerr.KindConfig, "unrecognized --phase "+resumePhase, "use one of requirements, design, tasks, review, fixup, final")
			}
		}
		return runPipeline(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{specCmd, resumeCmd} {
		c.Flags().BoolVar(&applyFixups, "apply-fixups", false, "apply fixup diffs instead of only previewing them")
		c.Flags().StringVar(&llmProviderCLI, "llm-provider", "", "override the primary LLM backend id")
		c.Flags().StringVar(&llmFallbackCLI, "llm-fallback", "", "override the secondary LLM backend id")
		c.Flags().BoolVar(&force, "force", false, "break a stale lock if one is found")
		c.Flags().StringVar(&idea, "idea", "", "the rough idea text to seed the requirements phase (spec only)")
	}
	resumeCmd.Flags().StringVar(&resumePhase, "phase", "", "resume hint; the orchestrator still verifies committed receipts")
}

func runPipeline(specID string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return err
	}
	sroot, err := resolveStateRoot()
	if err != nil {
		return err
	}

	overrides := &config.Overrides{}
	if llmProviderCLI != "" {
		overrides.LLMProvider = &llmProviderCLI
	}
	if llmFallbackCLI != "" {
		overrides.LLMFallback = &llmFallbackCLI
	}
	applyFixupsVal := applyFixups
	overrides.ApplyFixups = &applyFixupsVal

	cfg, sources, err := config.Load(configPath, nil, overrides)
	if err != nil {
		return err
	}

	sandboxRoot, err := sandbox.New(root, cfg.AllowSymlinks)
	if err != nil {
		return err
	}

	httpBudget := llmbackend.NewBudget(cfg.HTTPBudgetCalls)
	backend, err := resolveBackend(cfg.LLMProvider, cfg.PhaseTimeout, httpBudget)
	if err != nil {
		return err
	}
	if backend == nil {
		return specerr.New(specerr.KindConfig, "llm_provider is not set", "pass --llm-provider or set it in the config file")
	}
	fallback, err := resolveBackend(cfg.LLMFallback, cfg.PhaseTimeout, httpBudget)
	if err != nil {
		return err
	}

	rootLogger, err := logging.New(logging.Options{Verbose: verbose, JSON: jsonOutput})
	if err != nil {
		return specerr.Wrap(specerr.KindConfig, "initializing logger", "", err)
	}
	defer rootLogger.Sync() //nolint:errcheck

	o, err := orchestrator.New(orchestrator.Options{
		SpecID: specID, Idea: idea, Config: cfg, Sources: sources, RepoRoot: sandboxRoot, StateRoot: sroot,
		Backend: backend, Fallback: fallback, AllowStaleLock: force,
		Logger: logging.For(rootLogger, logging.CategoryOrchestrator),
	})
	if err != nil {
		return err
	}

	status, err := o.Run(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		fmt.Printf("{\"spec_id\":%q,\"phase\":%q,\"exit_code\":%d}\n", status.SpecID, status.Phase, status.ExitCode)
	} else {
		fmt.Printf("spec %s: phase=%s exit_code=%d\n", status.SpecID, status.Phase, status.ExitCode)
	}
	return nil
}
