package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestDoctorCmd_RunsWithoutNetworkCalls(t *testing.T) {
	configPath = ""
	defer func() { configPath = "" }()

	if err := doctorCmd.RunE(&cobra.Command{}, nil); err != nil {
		t.Fatalf("doctorCmd.RunE: %v", err)
	}
}
