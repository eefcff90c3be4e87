package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voxtape/internal/config"
	"voxtape/internal/daemon"
	"voxtape/internal/ipc"
	"voxtape/internal/logging"
	"voxtape/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("VOXTAPE_API_TOKEN", "")
	t.Setenv("VOXTAPE_NTFY_TOPIC", "")

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(homeDir, ".config", "voxtape", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}

	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
recordings_dir = %q
log_dir = %q
state_dir = %q
api_bind = %q

[capture]
min_free_bytes = 0

[transport]
kind = "none"
`,
		cfg.Paths.RecordingsDir,
		cfg.Paths.LogDir,
		cfg.Paths.StateDir,
		cfg.Paths.APIBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
