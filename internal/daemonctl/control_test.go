package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"voxtape/internal/ipc"
	"voxtape/internal/testsupport"
)

func TestWaitForShutdownWithoutSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	if err := WaitForShutdown(socket, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
	alive, pid, err := ProcessInfo(socket)
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(filepath.Join(t.TempDir(), "missing.sock"), cfg, time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "voxtaped.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestForceKillProcessWithoutPID(t *testing.T) {
	if _, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), "", 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRecording(t, store, "rec-1")
	testsupport.NewRecording(t, store, "rec-2")

	snap, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Status.Running {
		t.Fatal("expected offline status")
	}
	if snap.Status.Stats["recording"] != 2 {
		t.Fatalf("stats = %v", snap.Status.Stats)
	}
	if snap.Status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("database path = %q", snap.Status.DatabasePath)
	}

	checks := map[string]StatusLine{}
	for _, line := range snap.SystemChecks {
		checks[line.Label] = line
	}
	if checks["Voxtape"].Severity != "warn" {
		t.Fatalf("voxtape check = %+v", checks["Voxtape"])
	}
	if checks["Transport"].Severity != "warn" {
		t.Fatalf("transport check = %+v", checks["Transport"])
	}
	if checks["Recordings"].Severity != "ok" {
		t.Fatalf("recordings check = %+v", checks["Recordings"])
	}
	if checks["Notifications"].Severity != "warn" {
		t.Fatalf("notifications check = %+v", checks["Notifications"])
	}
}

func TestBuildSystemChecksBridgeGating(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		features []string
		want     string
	}{
		{name: "disabled", enabled: false, features: []string{"bridge"}, want: "info"},
		{name: "not granted", enabled: true, features: nil, want: "warn"},
		{name: "granted", enabled: true, features: []string{"bridge"}, want: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithPolicy(6, 24, tt.features...))
			cfg.Bridge.Enabled = tt.enabled
			lines := BuildSystemChecks(cfg, &ipc.StatusResponse{Running: true, PID: 42})
			for _, line := range lines {
				if line.Label == "Bridge" {
					if line.Severity != tt.want {
						t.Fatalf("bridge severity = %q (%s), want %q", line.Severity, line.Detail, tt.want)
					}
					return
				}
			}
			t.Fatal("bridge check missing")
		})
	}
}
