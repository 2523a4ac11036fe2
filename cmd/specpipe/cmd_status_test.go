package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/specpipe/core/internal/specstate"
)

func TestStatusCmd_FailsWhenNoStatusRecorded(t *testing.T) {
	sroot := t.TempDir()
	stateRoot = sroot
	defer func() { stateRoot = "" }()

	if _, err := specstate.Open(sroot, "spec-1"); err != nil {
		t.Fatal(err)
	}

	if err := statusCmd.RunE(&cobra.Command{}, []string{"spec-1"}); err == nil {
		t.Fatal("expected an error when no status has been written yet")
	}
}

func TestStatusCmd_ReportsWrittenStatus(t *testing.T) {
	sroot := t.TempDir()
	stateRoot = sroot
	defer func() { stateRoot = "" }()

	d, err := specstate.Open(sroot, "spec-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteStatus(&specstate.Status{SpecID: "spec-1", Phase: "design", UpdatedAt: time.Now(), ExitCode: 0}); err != nil {
		t.Fatal(err)
	}

	if err := statusCmd.RunE(&cobra.Command{}, []string{"spec-1"}); err != nil {
		t.Fatalf("statusCmd.RunE: %v", err)
	}
}

func TestCleanCmd_RequiresForce(t *testing.T) {
	sroot := t.TempDir()
	stateRoot = sroot
	force = false
	defer func() { stateRoot = ""; force = false }()

	if _, err := specstate.Open(sroot, "spec-1"); err != nil {
		t.Fatal(err)
	}

	if err := cleanCmd.RunE(&cobra.Command{}, []string{"spec-1"}); err == nil {
		t.Fatal("expected cleanCmd to refuse without --force")
	}
}

func TestCleanCmd_RemovesStateWithForce(t *testing.T) {
	sroot := t.TempDir()
	stateRoot = sroot
	force = true
	defer func() { stateRoot = ""; force = false }()

	if _, err := specstate.Open(sroot, "spec-1"); err != nil {
		t.Fatal(err)
	}

	if err := cleanCmd.RunE(&cobra.Command{}, []string{"spec-1"}); err != nil {
		t.Fatalf("cleanCmd.RunE: %v", err)
	}
}
