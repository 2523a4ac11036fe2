package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestInitCmd_WritesConfigFile(t *testing.T) {
	ws := t.TempDir()
	workspace = ws
	defer func() { workspace = "" }()

	if err := initCmd.RunE(&cobra.Command{}, nil); err != nil {
		t.Fatalf("initCmd.RunE: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(ws, "specpipe.yaml"))
	if err != nil {
		t.Fatalf("reading generated config: %v", err)
	}
	if string(got) != defaultConfigTemplate {
		t.Fatalf("generated config does not match template:\n%s", got)
	}
}

func TestInitCmd_RefusesToOverwrite(t *testing.T) {
	ws := t.TempDir()
	workspace = ws
	defer func() { workspace = "" }()

	if err := initCmd.RunE(&cobra.Command{}, nil); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := initCmd.RunE(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected second init to fail because specpipe.yaml already exists")
	}
}
