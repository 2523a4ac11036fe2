package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/specerr"
	"github.com/specpipe/core/internal/specstate"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "emit the canonical status snapshot for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sroot, err := resolveStateRoot()
		if err != nil {
			return err
		}
		d, err := specstate.Open(sroot, args[0])
		if err != nil {
			return err
		}
		s, ok, err := d.ReadStatus()
		if err != nil {
			return err
		}
		if !ok {
			return specerr.New(specerr.KindConfig, "no status recorded for spec "+args[0], "run `specpipe spec "+args[0]+"` first")
		}
		if jsonOutput {
			fmt.Printf("{\"spec_id\":%q,\"phase\":%q,\"exit_code\":%d,\"updated_at\":%q}\n", s.SpecID, s.Phase, s.ExitCode, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		} else {
			fmt.Printf("spec %s: phase=%s exit_code=%d updated_at=%s\n", s.SpecID, s.Phase, s.ExitCode, s.UpdatedAt)
		}
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <id>",
	Short: "remove a spec's state directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !force {
			return specerr.New(specerr.KindConfig, "refusing to remove spec state without --force", "pass --force to confirm")
		}
		sroot, err := resolveStateRoot()
		if err != nil {
			return err
		}
		d, err := specstate.Open(sroot, args[0])
		if err != nil {
			return err
		}
		return d.Clean()
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&force, "force", false, "confirm removal")
}
