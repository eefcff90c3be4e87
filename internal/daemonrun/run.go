package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"voxtape/internal/config"
	"voxtape/internal/daemon"
	"voxtape/internal/ipc"
	"voxtape/internal/logging"
	"voxtape/internal/notifications"
	"voxtape/internal/recordstore"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the configured IPC socket location.
	SocketPath string
}

// Run starts the voxtape daemon and blocks until the context is canceled, a
// termination signal arrives, or a client requests shutdown over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := logging.DaemonLogPath(cfg)
	logger, err := logging.NewDaemonLogger(cfg, opts.LogLevel, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	logging.PruneRotatedLogs(logger, logPath, cfg.Logging.RetentionDays)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := recordstore.Open(cfg)
	if err != nil {
		logger.Error("open recording store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	d, err := daemon.New(cfg, store, logger, notifier)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other voxtaped is running and the state directory is writable"),
		)
		return err
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("voxtape daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", socketPath),
		logging.String("recordings_dir", cfg.Paths.RecordingsDir),
		logging.String("transport", cfg.Transport.Kind),
		logging.Bool("bridge_enabled", cfg.Bridge.Enabled),
	)

	<-signalCtx.Done()
	logger.Info("voxtape daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
