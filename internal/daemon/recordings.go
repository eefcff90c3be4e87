package daemon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"voxtape/internal/bridge"
	"voxtape/internal/capture"
	"voxtape/internal/codec"
	"voxtape/internal/logging"
	"voxtape/internal/notifications"
	"voxtape/internal/recordstore"
	"voxtape/internal/rtpsource"
	"voxtape/internal/services"
	"voxtape/internal/wire"
)

const hookTimeout = 15 * time.Second

// StartRequest describes a recording to begin.
type StartRequest struct {
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	RequesterID string `json:"requester_id"`
	Automatic   bool   `json:"automatic"`
}

// StartResult carries the identifiers and keys of a new recording.
type StartResult struct {
	ID         string    `json:"id"`
	AccessKey  string    `json:"access_key"`
	DeleteKey  string    `json:"delete_key"`
	IngestKey  string    `json:"ingest_key"`
	BridgePath string    `json:"bridge_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// StartRecording resolves the policy, checks free space, and starts a capture
// session writing under the recordings directory.
func (d *Daemon) StartRecording(ctx context.Context, req StartRequest) (*StartResult, error) {
	if !d.running.Load() {
		return nil, services.Wrap(services.ErrValidation, "daemon", "start recording", "daemon not running", nil)
	}
	policy, err := d.policy.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	dir := d.cfg.Paths.RecordingsDir
	if err := checkFreeSpace(dir, d.cfg.Capture.MinFreeBytes); err != nil {
		logging.WarnWithContext(d.logger, "recording refused by preflight", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "free disk space or lower capture.min_free_bytes"),
		)
		return nil, err
	}

	id := uuid.NewString()
	result := &StartResult{
		ID:        id,
		AccessKey: newKey(),
		DeleteKey: newKey(),
		IngestKey: newKey(),
	}
	ctx = services.WithRecordingID(ctx, id)
	logger := logging.WithContext(ctx, d.logger)

	transport, err := d.newTransport()
	if err != nil {
		return nil, err
	}
	streams, err := capture.OpenFileStreams(dir, id)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "open streams", dir, err)
	}

	rec := &recordstore.Recording{
		ID:            id,
		GuildID:       req.GuildID,
		ChannelID:     req.ChannelID,
		RequesterID:   req.RequesterID,
		AccessKey:     result.AccessKey,
		DeleteKey:     result.DeleteKey,
		IngestKey:     result.IngestKey,
		Automatic:     req.Automatic,
		StartedAt:     d.now().UTC(),
		RecordingsDir: dir,
	}
	if err := d.store.Create(ctx, rec); err != nil {
		_ = streams.Close()
		_ = capture.RemoveFileStreams(dir, id)
		return nil, err
	}

	session, err := capture.New(capture.Options{
		ID:          id,
		AccessKey:   result.AccessKey,
		DeleteKey:   result.DeleteKey,
		IngestKey:   result.IngestKey,
		RequesterID: req.RequesterID,
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		Automatic:   req.Automatic,
		Streams:     streams,
		Limits:      d.limits(),
		Transport:   transport,
		NewChecker:  codec.NewChecker,
		EndHook:     d.onRecordingEnded,
		Logger:      d.logger,
	})
	if err != nil {
		_ = streams.Close()
		d.finishUnstarted(id, err)
		return nil, err
	}

	live := &liveRecording{session: session, policy: policy}
	if d.cfg.Bridge.Enabled && policy.HasFeature(FeatureBridge) {
		live.bridge = bridge.New(session, bridge.Options{
			SizeLimitBytes:   d.cfg.Bridge.SizeLimitBytes,
			SpeakingDebounce: d.cfg.SpeakingDebounce(),
			GranuleTolerance: time.Duration(d.cfg.Bridge.GranuleToleranceSeconds) * time.Second,
			MaxNickSuffix:    d.cfg.Bridge.MaxNickSuffix,
			Logger:           d.logger,
		})
		d.bridges.Register(live.bridge)
		result.BridgePath = "/bridge/" + id
	}
	d.mu.Lock()
	d.sessions[id] = live
	d.mu.Unlock()

	// A failed start runs the end hook before returning, so the row is
	// already finished and the session unregistered.
	if err := session.Start(ctx, policy); err != nil {
		return nil, err
	}
	result.StartedAt = session.StartTime()

	logger.Info("recording started",
		logging.String(logging.FieldEventType, "recording_started"),
		logging.String("channel_id", req.ChannelID),
		logging.Bool("bridge", live.bridge != nil),
		logging.Bool("automatic", req.Automatic),
	)
	if err := d.notifier.NotifyRecordingStarted(ctx, notifications.Started{
		ID:        id,
		ChannelID: req.ChannelID,
		Automatic: req.Automatic,
	}); err != nil {
		logger.Warn("start notification failed", logging.Error(err))
	}
	return result, nil
}

// StopRecording ends a live recording and waits for its streams to close.
func (d *Daemon) StopRecording(ctx context.Context, id, actorID string) error {
	live, err := d.live(id)
	if err != nil {
		return err
	}
	return live.session.Stop(ctx, capture.StopRequest{
		Expected: true,
		ActorID:  actorID,
		Reason:   capture.ReasonRequested,
	})
}

// Note appends a text note to a live recording.
func (d *Daemon) Note(_ context.Context, id, text string) error {
	live, err := d.live(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, "daemon", "note", "note text required", nil)
	}
	return live.session.Note(text)
}

func (d *Daemon) live(id string) (*liveRecording, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	live, ok := d.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "lookup", "no live recording "+id, nil)
	}
	return live, nil
}

func (d *Daemon) newTransport() (capture.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(d.cfg.Transport.Kind)) {
	case "rtp":
		return rtpsource.New(d.cfg.Transport.RTPBind, d.cfg.Transport.SSRCMap, d.logger)
	case "", "none":
		return idleTransport{}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "transport",
			"unsupported transport kind "+d.cfg.Transport.Kind, nil)
	}
}

func (d *Daemon) limits() capture.Limits {
	c := d.cfg.Capture
	return capture.Limits{
		SizeLimitBytes:    c.SizeLimitBytes,
		MaxTracks:         c.MaxTracks,
		BufferDepth:       c.BufferDepth,
		SpotCheckInterval: c.SpotCheckInterval,
		IdleInterval:      d.cfg.IdleInterval(),
		IdleWarnSamples:   c.IdleWarnSamples,
		ReconnectAttempts: c.ReconnectAttempts,
		ReconnectBackoff:  d.cfg.ReconnectBackoff(),
	}
}

// onRecordingEnded is the capture end hook: it persists the summary, tears
// down the bridge, and sends the finish notification.
func (d *Daemon) onRecordingEnded(sum capture.Summary) {
	d.mu.Lock()
	live := d.sessions[sum.RecordingID]
	delete(d.sessions, sum.RecordingID)
	d.mu.Unlock()

	if live != nil && live.bridge != nil {
		d.bridges.Unregister(sum.RecordingID)
		live.bridge.Close(wire.CloseRecordingEnded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	ctx = services.WithRecordingID(ctx, sum.RecordingID)
	logger := logging.WithContext(ctx, d.logger)

	end := sum.StartTime.Add(sum.Duration)
	if sum.StartTime.IsZero() {
		end = d.now()
	}
	out := recordstore.Outcome{
		Status:       recordstore.StatusEnded,
		Reason:       sum.Reason,
		UsedBridge:   sum.UsedBridge,
		Errored:      sum.Errored,
		EndedAt:      end,
		Duration:     sum.Duration,
		BytesWritten: sum.BytesWritten,
		TrackCount:   sum.Tracks,
		NoteCount:    sum.Notes,
	}
	if sum.Err != nil {
		out.Status = services.FailureStatus(sum.Err)
		out.ErrorMessage = sum.Err.Error()
	}
	if live != nil && live.policy.MaxDownloadRetentionHours > 0 {
		expires := end.Add(time.Duration(live.policy.MaxDownloadRetentionHours) * time.Hour)
		out.ExpiresAt = &expires
	}
	if _, err := d.store.Finish(ctx, sum.RecordingID, out); err != nil {
		logging.ErrorWithContext(logger, "failed to persist recording summary", "summary_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the recording database; the row is failed on next start"),
		)
	}

	logger.Info("recording ended",
		logging.String(logging.FieldEventType, "recording_ended"),
		logging.String("reason", sum.Reason),
		logging.String("status", string(out.Status)),
		logging.Duration("duration", sum.Duration),
		logging.Int64("bytes_written", sum.BytesWritten),
		logging.Int("tracks", sum.Tracks),
	)

	if err := d.notifier.NotifyRecordingFinished(ctx, notifications.Finished{
		ID:           sum.RecordingID,
		Reason:       sum.Reason,
		Duration:     sum.Duration,
		BytesWritten: sum.BytesWritten,
		Tracks:       sum.Tracks,
		Notes:        sum.Notes,
		Errored:      sum.Errored,
	}); err != nil {
		logger.Warn("finish notification failed", logging.Error(err))
	}
	if out.Status == recordstore.StatusFailed {
		if err := d.notifier.NotifyError(ctx, sum.Err, "recording "+sum.RecordingID); err != nil {
			logger.Warn("error notification failed", logging.Error(err))
		}
	}
}

// finishUnstarted fails a row whose session could not be built.
func (d *Daemon) finishUnstarted(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	out := recordstore.Outcome{
		Status:       recordstore.StatusFailed,
		Reason:       capture.ReasonConnectFailed,
		ErrorMessage: cause.Error(),
		Errored:      true,
		EndedAt:      d.now(),
	}
	if _, err := d.store.Finish(ctx, id, out); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("failed to finish unstarted recording", logging.RecordingID(id), logging.Error(err))
	}
}

// newKey returns an unguessable token for recording access.
func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// idleTransport is used when recordings only receive bridged audio.
type idleTransport struct{}

func (idleTransport) Connect(context.Context, capture.Handler) error { return nil }
func (idleTransport) Leave(context.Context) error                    { return nil }
