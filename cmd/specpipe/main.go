// Package main implements the specpipe CLI: a thin Cobra wrapper around
// the core orchestrator. It owns configuration loading, backend
// resolution from environment credentials, and exit-code mapping; all
// actual pipeline behavior lives in internal/orchestrator and its
// collaborators.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/specerr"
)

var (
	verbose    bool
	jsonOutput bool
	workspace  string
	stateRoot  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "specpipe",
	Short: "specpipe - deterministic, auditable idea-to-spec pipeline",
	Long: `specpipe drives a rough idea through a fixed phase sequence
(requirements, design, tasks, review, fixup, final), invoking an external
LLM backend and writing fingerprinted, canonicalized artifacts plus a
receipt for every phase invocation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&stateRoot, "state-root", "", "override the state root (default: $XCHECKER_HOME or ~/.specpipe)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a specpipe config YAML file")

	rootCmd.AddCommand(specCmd, resumeCmd, statusCmd, cleanCmd, initCmd, gateCmd, doctorCmd)
}

// resolveWorkspace returns the absolute repository root the sandbox
// should be rooted at.
func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// resolveStateRoot honors --state-root, then XCHECKER_HOME, then a
// per-user default, matching spec.md §6's single-variable-override rule.
func resolveStateRoot() (string, error) {
	if stateRoot != "" {
		return filepath.Abs(stateRoot)
	}
	if v, ok := os.LookupEnv("XCHECKER_HOME"); ok && v != "" {
		return filepath.Abs(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", specerr.Wrap(specerr.KindConfig, "resolving default state root", "set --state-root or XCHECKER_HOME explicitly", err)
	}
	return filepath.Join(home, ".specpipe"), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		kind, ok := specerr.KindOf(err)
		if !ok {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(specerr.ExitCode(kind))
	}
}
