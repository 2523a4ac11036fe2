package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveWorkspace_DefaultsToCWD(t *testing.T) {
	workspace = ""
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err := resolveWorkspace()
	if err != nil {
		t.Fatalf("resolveWorkspace: %v", err)
	}
	if got != cwd {
		t.Fatalf("expected %s, got %s", cwd, got)
	}
}

func TestResolveWorkspace_HonorsFlag(t *testing.T) {
	dir := t.TempDir()
	workspace = dir
	defer func() { workspace = "" }()

	got, err := resolveWorkspace()
	if err != nil {
		t.Fatalf("resolveWorkspace: %v", err)
	}
	want, _ := filepath.Abs(dir)
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolveStateRoot_FlagBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	stateRoot = dir
	defer func() { stateRoot = "" }()
	t.Setenv("XCHECKER_HOME", t.TempDir())

	got, err := resolveStateRoot()
	if err != nil {
		t.Fatalf("resolveStateRoot: %v", err)
	}
	want, _ := filepath.Abs(dir)
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolveStateRoot_EnvBeatsDefault(t *testing.T) {
	stateRoot = ""
	envDir := t.TempDir()
	t.Setenv("XCHECKER_HOME", envDir)

	got, err := resolveStateRoot()
	if err != nil {
		t.Fatalf("resolveStateRoot: %v", err)
	}
	want, _ := filepath.Abs(envDir)
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolveStateRoot_FallsBackToHomeDotSpecpipe(t *testing.T) {
	stateRoot = ""
	t.Setenv("XCHECKER_HOME", "")
	os.Unsetenv("XCHECKER_HOME")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}

	got, err := resolveStateRoot()
	if err != nil {
		t.Fatalf("resolveStateRoot: %v", err)
	}
	want := filepath.Join(home, ".specpipe")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
