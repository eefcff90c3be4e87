package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Paths.RecordingsDir)
	requireContains(t, out, "Transport:   none")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.socketPath, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}
