package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/specerr"
)

const defaultConfigTemplate = `# specpipe configuration (see EffectiveConfig in the design doc)
packet_max_bytes: 65536
packet_max_lines: 1200
phase_timeout: 10m
runner_mode: auto
llm_provider: claude-cli
include:
  - "**/*"
exclude: []
allow_symlinks: false
apply_fixups: false
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create a specpipe.yaml skeleton in the current workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveWorkspace()
		if err != nil {
			return err
		}
		path := filepath.Join(root, "specpipe.yaml")
		if _, err := os.Stat(path); err == nil {
			return specerr.New(specerr.KindConfig, "specpipe.yaml already exists at "+path, "remove it first if you want to regenerate it")
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
			return specerr.Wrap(specerr.KindIO, "writing "+path, "", err)
		}
		fmt.Println("wrote", path)
		return nil
	},
}
