package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"voxtape/internal/bridge"
	"voxtape/internal/capture"
	"voxtape/internal/config"
	"voxtape/internal/logging"
	"voxtape/internal/notifications"
	"voxtape/internal/recordstore"
	"voxtape/internal/services"
)

const stopTimeout = 30 * time.Second

// Daemon coordinates live recordings and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *recordstore.Store
	notifier notifications.Service
	policy   PolicyResolver
	bridges  *bridge.Registry
	now      func() time.Time

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	api     *apiServer

	mu       sync.Mutex
	sessions map[string]*liveRecording
}

type liveRecording struct {
	session *capture.Session
	bridge  *bridge.Bridge
	policy  capture.Policy
}

// ActiveRecording is the status view of one live recording.
type ActiveRecording struct {
	capture.Snapshot
	BridgeEnabled bool `json:"bridge_enabled"`
	BridgePeers   int  `json:"bridge_peers"`
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                       `json:"running"`
	PID          int                        `json:"pid"`
	DatabasePath string                     `json:"database_path"`
	LockFilePath string                     `json:"lock_file_path"`
	APIAddress   string                     `json:"api_address,omitempty"`
	FreeBytes    uint64                     `json:"free_bytes"`
	Active       []ActiveRecording          `json:"active"`
	Stats        map[recordstore.Status]int `json:"stats"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *recordstore.Store, logger *slog.Logger, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		notifier: notifier,
		policy:   NewStaticPolicy(cfg),
		bridges:  bridge.NewRegistry(),
		now:      time.Now,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		sessions: make(map[string]*liveRecording),
	}, nil
}

// Start acquires the daemon lock, fails recordings left over from a previous
// run, and starts the janitor and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voxtape daemon instance is already running")
	}

	if n, err := d.store.ResetInterrupted(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset interrupted recordings: %w", err)
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "recordings interrupted by previous shutdown", "recordings_interrupted",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "marked failed; captured audio is kept until expiry"),
		)
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.group, _ = errgroup.WithContext(d.ctx)
	if err := api.start(d.ctx, d.group); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel, d.group = nil, nil, nil
		return err
	}
	d.api = api
	d.group.Go(func() error {
		d.runJanitor(d.ctx)
		return nil
	})

	d.running.Store(true)
	d.logger.Info("voxtape daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop ends every live recording, stops background work, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := d.stopAll(ctx, capture.ReasonShutdown); err != nil {
		logging.WarnWithContext(d.logger, "recordings did not stop cleanly", "shutdown_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recordings are marked failed on next start"),
		)
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.group.Wait(); err != nil {
		d.logger.Warn("background task failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx, d.group, d.api = nil, nil, nil
	d.running.Store(false)
	d.logger.Info("voxtape daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// stopAll stops every live recording concurrently and waits for their end
// hooks.
func (d *Daemon) stopAll(ctx context.Context, reason string) error {
	d.mu.Lock()
	live := make([]*liveRecording, 0, len(d.sessions))
	for _, rec := range d.sessions {
		live = append(live, rec)
	}
	d.mu.Unlock()

	var g errgroup.Group
	for _, rec := range live {
		g.Go(func() error {
			return rec.session.Stop(ctx, capture.StopRequest{Expected: true, Reason: reason})
		})
	}
	return g.Wait()
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Bridges returns the registry of bridges accepting web peers.
func (d *Daemon) Bridges() *bridge.Registry {
	return d.bridges
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Active:       d.activeRecordings(),
	}
	if d.api != nil {
		status.APIAddress = d.api.address()
	}
	if free, err := freeBytes(d.cfg.Paths.RecordingsDir); err == nil {
		status.FreeBytes = free
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Stats = stats
	} else {
		d.logger.Debug("recording stats unavailable", logging.Error(err))
	}
	return status
}

func (d *Daemon) activeRecordings() []ActiveRecording {
	d.mu.Lock()
	live := make([]*liveRecording, 0, len(d.sessions))
	for _, rec := range d.sessions {
		live = append(live, rec)
	}
	d.mu.Unlock()

	out := make([]ActiveRecording, 0, len(live))
	for _, rec := range live {
		view := ActiveRecording{Snapshot: rec.session.Snapshot()}
		if rec.bridge != nil {
			view.BridgeEnabled = true
			view.BridgePeers = rec.bridge.Peers()
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ListRecordings returns persisted recordings filtered by optional statuses.
func (d *Daemon) ListRecordings(ctx context.Context, statuses []recordstore.Status) ([]*recordstore.Recording, error) {
	return d.store.List(ctx, statuses...)
}

// Recording returns one persisted recording.
func (d *Daemon) Recording(ctx context.Context, id string) (*recordstore.Recording, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "recording", "recording id required", nil)
	}
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "recording", id, nil)
	}
	return rec, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (recordstore.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}
