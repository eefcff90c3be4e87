package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxtape/internal/daemon"
)

func TestRecordingLifecycleThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"record", "start", "--channel", "c1", "--requester", "u1", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	var started daemon.StartResult
	if err := json.Unmarshal([]byte(out), &started); err != nil {
		t.Fatalf("decode start output %q: %v", out, err)
	}
	if started.ID == "" || started.AccessKey == "" {
		t.Fatalf("unexpected start result %+v", started)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Live Recordings")
	requireContains(t, out, started.ID)

	out, _, err = runCLI(t, []string{"record", "note", started.ID, "intro", "segment"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record note: %v", err)
	}
	requireContains(t, out, "Note added")

	out, _, err = runCLI(t, []string{"record", "stop", started.ID, "--actor", "u1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record stop: %v", err)
	}
	requireContains(t, out, "stopped")

	out, _, err = runCLI(t, []string{"recordings", "list", "--status", "ended"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings list: %v", err)
	}
	requireContains(t, out, started.ID)
	requireContains(t, out, "Ended")

	out, _, err = runCLI(t, []string{"recordings", "show", started.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings show: %v", err)
	}
	requireContains(t, out, started.AccessKey)
	requireContains(t, out, "Notes:")

	out, _, err = runCLI(t, []string{"recordings", "verify", started.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings verify: %v\n%s", err, out)
	}
	requireContains(t, out, ".ogg.data")

	exportDir := filepath.Join(t.TempDir(), "export")
	out, _, err = runCLI(t, []string{"recordings", "export", started.ID, "--to", exportDir}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings export: %v", err)
	}
	requireContains(t, out, "Exported "+started.ID)
	if _, err := os.Stat(filepath.Join(exportDir, started.ID+".ogg.data")); err != nil {
		t.Fatalf("exported data file: %v", err)
	}

	out, _, err = runCLI(t, []string{"logs", "--recording", started.ID, "-n", "20"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "recording stopping")

	if _, _, err := runCLI(t, []string{"record", "stop", started.ID}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected stopping an ended recording to fail")
	}
}

func TestVerifyMissingRecordingFails(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"recordings", "verify", "nope", "--dir", t.TempDir()}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	requireContains(t, out, "missing")
}

func TestCommandsReportMissingDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	socket := filepath.Join(t.TempDir(), "absent.sock")

	_, _, err := runCLI(t, []string{"record", "stop", "x"}, socket, env.configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "voxtape start")

	out, _, err := runCLI(t, []string{"status", "--json"}, socket, env.configPath)
	if err != nil {
		t.Fatalf("offline status: %v", err)
	}
	requireContains(t, out, `"system_checks"`)
	requireContains(t, out, "Not running")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
