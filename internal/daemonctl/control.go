package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"voxtape/internal/config"
	"voxtape/internal/ipc"
	"voxtape/internal/recordstore"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached `voxtape daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	if !status.Running {
		return StartResult{}, fmt.Errorf("daemon answered on %s but is not running", socketPath)
	}
	if launched {
		return StartResult{State: StartStateStarted, Launched: true, PID: status.PID}, nil
	}
	return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		lastErr = fmt.Errorf("daemon still running")
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans its pid and
// lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate asks the daemon to shut down and force-kills the process
// if it is still answering after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil {
		pid = status.PID
	}
	resp, err := client.Shutdown()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp.Accepted}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}
	if cfg == nil {
		return result, fmt.Errorf("daemon still running and configuration unavailable")
	}

	if livePID == 0 {
		livePID = pid
	}
	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), livePID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// StatusLine is one labeled check in status output.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Snapshot combines daemon status with config-derived checks.
type Snapshot struct {
	Status       *ipc.StatusResponse `json:"status"`
	SystemChecks []StatusLine        `json:"system_checks"`
}

// BuildStatusSnapshot collects daemon status, falling back to reading the
// recording database directly when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	status := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			status = resp
		}
	}

	if !status.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if _, statErr := os.Stat(cfg.DatabasePath()); statErr == nil {
			store, openErr := recordstore.Open(cfg)
			if openErr == nil {
				stats, statsErr := store.Stats(queryCtx)
				_ = store.Close()
				if statsErr == nil {
					status.Stats = make(map[string]int, len(stats))
					for k, v := range stats {
						status.Stats[string(k)] = v
					}
				}
			}
		}
		status.DatabasePath = cfg.DatabasePath()
		if free, freeErr := freeBytes(cfg.Paths.RecordingsDir); freeErr == nil {
			status.FreeBytes = free
		}
	}

	return &Snapshot{
		Status:       status,
		SystemChecks: BuildSystemChecks(cfg, status),
	}, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, status *ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Voxtape", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
	} else {
		lines = append(lines, StatusLine{Label: "Voxtape", Severity: "warn", Detail: "Not running (run `voxtape start`)"})
	}

	switch kind := strings.TrimSpace(cfg.Transport.Kind); kind {
	case "rtp":
		lines = append(lines, StatusLine{Label: "Transport", Severity: "ok", Detail: "RTP on " + cfg.Transport.RTPBind})
	case "", "none":
		lines = append(lines, StatusLine{Label: "Transport", Severity: "warn", Detail: "None (bridge-only recordings)"})
	default:
		lines = append(lines, StatusLine{Label: "Transport", Severity: "error", Detail: "Unknown kind " + strconv.Quote(kind)})
	}

	switch {
	case !cfg.Bridge.Enabled:
		lines = append(lines, StatusLine{Label: "Bridge", Severity: "info", Detail: "Disabled"})
	case !cfg.FeatureEnabled("bridge"):
		lines = append(lines, StatusLine{Label: "Bridge", Severity: "warn", Detail: "Enabled but not granted by policy"})
	case status.APIAddress != "":
		lines = append(lines, StatusLine{Label: "Bridge", Severity: "ok", Detail: "Accepting peers on " + status.APIAddress})
	default:
		lines = append(lines, StatusLine{Label: "Bridge", Severity: "ok", Detail: "Enabled"})
	}

	if err := unix.Access(cfg.Paths.RecordingsDir, unix.W_OK|unix.X_OK); err != nil {
		lines = append(lines, StatusLine{Label: "Recordings", Severity: "error", Detail: fmt.Sprintf("%s not writable: %v", cfg.Paths.RecordingsDir, err)})
	} else {
		severity := "ok"
		if cfg.Capture.MinFreeBytes > 0 && status.FreeBytes < uint64(cfg.Capture.MinFreeBytes) {
			severity = "warn"
		}
		lines = append(lines, StatusLine{Label: "Recordings", Severity: severity, Detail: fmt.Sprintf("%s free in %s", humanize.IBytes(status.FreeBytes), cfg.Paths.RecordingsDir)})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}
	return lines
}

func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
