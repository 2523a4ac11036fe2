package main

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "health check: config validity and backend binary availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sources, err := config.Load(configPath, nil, nil)
		if err != nil {
			if jsonOutput {
				fmt.Printf("{\"ok\":false,\"error\":%q}\n", err.Error())
			} else {
				fmt.Println("config: FAIL:", err)
			}
			return err
		}

		cliAvailable := map[string]bool{}
		for id, command := range cliProviderCommand {
			_, lookErr := exec.LookPath(command)
			cliAvailable[id] = lookErr == nil
		}

		if jsonOutput {
			fmt.Printf("{\"ok\":true,\"runner_mode\":%q,\"llm_provider\":%q,\"llm_provider_source\":%q}\n",
				cfg.RunnerMode, cfg.LLMProvider, sources["llm_provider"])
		} else {
			fmt.Println("config: OK")
			fmt.Printf("runner_mode=%s (source=%s)\n", cfg.RunnerMode, sources["runner_mode"])
			fmt.Printf("llm_provider=%s (source=%s)\n", cfg.LLMProvider, sources["llm_provider"])
			for id, ok := range cliAvailable {
				fmt.Printf("backend %-12s available=%v\n", id, ok)
			}
		}
		return nil
	},
}
