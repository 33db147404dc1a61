package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  command: "/usr/local/bin/adder"
  args: ["--port", "0"]
  working_dir: "/tmp"
  timeout_seconds: 30
log:
  verbose: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Server.Command != "/usr/local/bin/adder" {
		t.Errorf("expected server command '/usr/local/bin/adder', got %s", cfg.Server.Command)
	}
	if len(cfg.Server.Args) != 2 || cfg.Server.Args[0] != "--port" {
		t.Errorf("unexpected server args: %v", cfg.Server.Args)
	}
	if cfg.Server.TimeoutSeconds != 30 {
		t.Errorf("expected timeout_seconds 30, got %d", cfg.Server.TimeoutSeconds)
	}
	if !cfg.Log.Verbose {
		t.Error("expected log.verbose true")
	}
}

func TestLoadConfig_MissingCommand(t *testing.T) {
	path := writeConfig(t, `
server:
  args: ["--port", "0"]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing server.command")
	}
}

func TestLoadConfig_NegativeTimeout(t *testing.T) {
	path := writeConfig(t, `
server:
  command: "/bin/echo"
  timeout_seconds: -5
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative timeout_seconds")
	}
}

func TestLoadConfig_EnvCasePreservation(t *testing.T) {
	path := writeConfig(t, `
server:
  command: "/bin/echo"
  env:
    API_KEY: "${API_KEY}"
    HOME: "${HOME}"
    PATH: "${PATH}"
    lowercase_var: "test"
    MixedCase_Var: "test2"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Env var keys must preserve their original case from the YAML
	expectedKeys := map[string]bool{
		"API_KEY":       true,
		"HOME":          true,
		"PATH":          true,
		"lowercase_var": true,
		"MixedCase_Var": true,
	}

	if len(cfg.Server.Env) != len(expectedKeys) {
		t.Errorf("expected %d env vars, got %d", len(expectedKeys), len(cfg.Server.Env))
	}

	for key := range expectedKeys {
		if _, exists := cfg.Server.Env[key]; !exists {
			t.Errorf("expected key %q to exist with exact case, but it doesn't", key)
		}
	}

	if cfg.Server.Env["API_KEY"] != "${API_KEY}" {
		t.Errorf("expected API_KEY value '${API_KEY}', got %q", cfg.Server.Env["API_KEY"])
	}
}

func TestLoad_XDGExpansion(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("HOME not set")
	}
	if os.Getenv("XDG_DATA_HOME") != "" {
		t.Skip("XDG_DATA_HOME overrides the default base")
	}

	path := writeConfig(t, `
server:
  command: "/bin/echo"

trace:
  path: "$XDG_DATA_HOME/exp/trace.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Trace.Path == "$XDG_DATA_HOME/exp/trace.db" {
		t.Error("XDG variable not expanded in trace path")
	}

	expectedPath := filepath.Join(home, ".local", "share", "exp", "trace.db")
	if cfg.Trace.Path != expectedPath {
		t.Errorf("Trace.Path = %q, want %q", cfg.Trace.Path, expectedPath)
	}
}

func TestLoad_NonXDGPathUnchanged(t *testing.T) {
	path := writeConfig(t, `
server:
  command: "/bin/echo"

trace:
  path: "/absolute/path/trace.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Trace.Path != "/absolute/path/trace.db" {
		t.Errorf("Non-XDG path was modified: %q", cfg.Trace.Path)
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath()
	if !strings.HasSuffix(got, filepath.Join("exp", "config.yaml")) {
		t.Errorf("DefaultPath() = %q, want an exp/config.yaml location", got)
	}
}
