package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxtape/internal/logging"
	"voxtape/internal/services"
)

// Granule units per second for every local time value.
const SampleRate = 48000

// Stop reasons recorded in the summary and the recording log.
const (
	ReasonRequested      = "stopped by request"
	ReasonEmpty          = "empty recording"
	ReasonTimeLimit      = "time limit reached"
	ReasonSizeLimit      = "size limit reached"
	ReasonDisconnected   = "voice connection closed"
	ReasonConnectFailed  = "could not connect"
	ReasonConnectionLost = "voice connection lost"
	ReasonShutdown       = "daemon shutting down"
)

var (
	// ErrNotRecording is returned for operations that need a live recording.
	ErrNotRecording = errors.New("recording not active")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("recording already started")
)

const leaveTimeout = 10 * time.Second

// Limits bounds one recording.
type Limits struct {
	SizeLimitBytes    int64
	MaxTracks         int
	BufferDepth       int
	SpotCheckInterval int
	IdleInterval      time.Duration
	IdleWarnSamples   int
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		SizeLimitBytes:    512 << 20,
		MaxTracks:         10000,
		BufferDepth:       16,
		SpotCheckInterval: 50,
		IdleInterval:      time.Minute,
		IdleWarnSamples:   5,
		ReconnectAttempts: 3,
		ReconnectBackoff:  2 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.SizeLimitBytes <= 0 {
		l.SizeLimitBytes = d.SizeLimitBytes
	}
	if l.MaxTracks <= 0 {
		l.MaxTracks = d.MaxTracks
	}
	if l.BufferDepth <= 0 {
		l.BufferDepth = d.BufferDepth
	}
	if l.SpotCheckInterval <= 0 {
		l.SpotCheckInterval = d.SpotCheckInterval
	}
	if l.IdleInterval <= 0 {
		l.IdleInterval = d.IdleInterval
	}
	if l.IdleWarnSamples <= 0 {
		l.IdleWarnSamples = d.IdleWarnSamples
	}
	if l.ReconnectAttempts < 0 {
		l.ReconnectAttempts = 0
	}
	if l.ReconnectBackoff <= 0 {
		l.ReconnectBackoff = d.ReconnectBackoff
	}
	return l
}

// Options configures a Session.
type Options struct {
	ID          string
	AccessKey   string
	DeleteKey   string
	IngestKey   string
	RequesterID string
	GuildID     string
	ChannelID   string
	Automatic   bool

	Streams    Streams
	Limits     Limits
	Transport  Transport
	Resolver   IdentityResolver
	NewChecker func(CodecKind) Checker
	EndHook    func(Summary)
	Logger     *slog.Logger
	Now        func() time.Time
}

// StopRequest describes why a recording is ending.
type StopRequest struct {
	Expected bool
	ActorID  string
	Reason   string
	Err      error
}

// Session is one recording: its tracks, its write queue, and its lifecycle.
type Session struct {
	opts     Options
	limits   Limits
	now      func() time.Time
	logger   *slog.Logger
	queue    *WriteQueue
	activity activityLog

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu         sync.Mutex
	state      State
	policy     Policy
	startedAt  time.Time
	connected  bool
	stopping   bool
	errored    bool
	usedBridge bool
	capNoted   bool
	notes      int
	nextTrack  uint32
	tracks     map[string]*Track
	byNumber   map[uint32]*Track
	observers  []Observer
	maxTimer   *time.Timer
	stopReq    StopRequest

	receivedAudio atomic.Bool
	identities    sync.WaitGroup

	idleMu       sync.Mutex
	lastSample   int64
	unchanged    int
	idleWarned   bool
	idleWarnings int

	stopOnce sync.Once
	ended    chan struct{}
	summary  Summary
}

// New prepares a recording. Nothing is captured until Start.
func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "capture", "new", "recording id required", nil)
	}
	if opts.Transport == nil {
		return nil, services.Wrap(services.ErrValidation, "capture", "new", "transport required", nil)
	}
	if opts.Streams.Data == nil || opts.Streams.Header1 == nil || opts.Streams.Header2 == nil ||
		opts.Streams.Users == nil || opts.Streams.Log == nil {
		return nil, services.Wrap(services.ErrValidation, "capture", "new", "all five streams required", nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		opts:      opts,
		limits:    opts.Limits.withDefaults(),
		now:       now,
		nextTrack: 1,
		tracks:    make(map[string]*Track),
		byNumber:  make(map[uint32]*Track),
		ended:     make(chan struct{}),
	}
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())

	base := logging.NewComponentLogger(opts.Logger, "capture").With(logging.RecordingID(opts.ID))
	s.queue = NewWriteQueue(opts.Streams, s.limits.SizeLimitBytes, s.onSizeLimit, base)
	s.logger = logging.TeeLogger(base, logging.NewLineHandler(func(line string) {
		_ = s.queue.SubmitLogLine(line)
	}, slog.LevelInfo))
	return s, nil
}

// ID returns the recording identifier.
func (s *Session) ID() string { return s.opts.ID }

// IngestKey returns the key bridge peers must present.
func (s *Session) IngestKey() string { return s.opts.IngestKey }

// Done is closed once the recording has ended and its streams are closed.
func (s *Session) Done() <-chan struct{} { return s.ended }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Policy returns the policy the recording was started with.
func (s *Session) Policy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// StartTime returns when the recording entered the recording state.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Summary returns the final summary. It is only meaningful after Done.
func (s *Session) Summary() Summary {
	<-s.ended
	return s.summary
}

// Start connects the transport and begins capturing.
func (s *Session) Start(ctx context.Context, policy Policy) error {
	s.mu.Lock()
	if s.state != StateIdle || s.stopping {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.policy = policy
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	if err := s.opts.Transport.Connect(ctx, s); err != nil {
		wrapped := services.Wrap(services.ErrConnection, "capture", "connect", "voice connection failed", err)
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.mu.Unlock()
		logging.ErrorWithContext(s.logger, "voice connection failed", "connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check transport settings and that the voice source is reachable"),
		)
		_ = s.Stop(context.Background(), StopRequest{Reason: ReasonConnectFailed, Err: wrapped})
		return wrapped
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		// Stopped while connecting; shutdown saw no connection to leave.
		_ = s.opts.Transport.Leave(ctx)
		return ErrNotRecording
	}
	s.connected = true
	s.startedAt = s.now()
	s.setStateLocked(StateRecording)
	if d := policy.MaxDuration(); d > 0 {
		s.maxTimer = time.AfterFunc(d, func() {
			s.requestStop(StopRequest{Reason: ReasonTimeLimit})
		})
	}
	s.mu.Unlock()

	s.writeSessionMetadata(policy)
	go s.idleLoop()
	return nil
}

func (s *Session) writeSessionMetadata(policy Policy) {
	lines := []string{
		"voxtape recording " + s.opts.ID,
		"requested by " + orDash(s.opts.RequesterID),
		"guild " + orDash(s.opts.GuildID) + " channel " + orDash(s.opts.ChannelID),
		"started " + s.StartTime().UTC().Format(time.RFC3339),
		fmt.Sprintf("policy max_record_hours=%g retention_hours=%d features=%s",
			policy.MaxRecordHours, policy.MaxDownloadRetentionHours, strings.Join(policy.EnabledFeatures, ",")),
	}
	if s.opts.Automatic {
		lines = append(lines, "automatic recording")
	}
	for _, line := range lines {
		_ = s.queue.SubmitLogLine(line)
	}
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// OnDisconnect implements Handler.
func (s *Session) OnDisconnect(expected bool, err error) {
	s.mu.Lock()
	if s.stopping || s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	if expected {
		s.mu.Unlock()
		s.requestStop(StopRequest{Expected: true, Reason: ReasonDisconnected})
		return
	}
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateReconnecting)
	s.mu.Unlock()

	logging.WarnWithContext(s.logger, "voice connection lost; reconnecting", "transport_disconnected",
		logging.Error(err),
		logging.Int("attempts", s.limits.ReconnectAttempts),
		logging.String(logging.FieldImpact, "audio is not captured until the connection returns"),
	)
	go s.reconnect(err)
}

func (s *Session) reconnect(cause error) {
	lastErr := cause
	for attempt := 1; attempt <= s.limits.ReconnectAttempts; attempt++ {
		timer := time.NewTimer(s.limits.ReconnectBackoff * time.Duration(attempt))
		select {
		case <-s.lifeCtx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := s.opts.Transport.Connect(s.lifeCtx, s)
		if err == nil {
			s.mu.Lock()
			ok := !s.stopping && s.setStateLocked(StateRecording)
			s.mu.Unlock()
			if ok {
				s.logger.Info("voice connection restored", logging.Int("attempt", attempt))
				return
			}
			// Stop ran while connecting and its Leave had nothing to release.
			s.leaveLateConnection()
			return
		}
		lastErr = err
		s.logger.Debug("reconnect attempt failed", logging.Int("attempt", attempt), logging.Error(err))
	}

	wrapped := services.Wrap(services.ErrConnection, "capture", "reconnect",
		fmt.Sprintf("gave up after %d attempts", s.limits.ReconnectAttempts), lastErr)
	s.mu.Lock()
	s.setStateLocked(StateError)
	s.mu.Unlock()
	logging.ErrorWithContext(s.logger, "voice connection could not be restored", "reconnect_failed",
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, "check the voice source; captured audio is kept"),
	)
	s.requestStop(StopRequest{Reason: ReasonConnectionLost, Err: wrapped})
}

func (s *Session) leaveLateConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := s.opts.Transport.Leave(ctx); err != nil {
		logging.WarnWithContext(s.logger, "leaving late reconnect failed", "leave_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "transport may linger until it times out"),
		)
	}
}

func (s *Session) onSizeLimit() {
	logging.WarnWithContext(s.logger, "size limit reached; stopping recording", "size_limit",
		logging.Int64("size_limit_bytes", s.queue.Ceiling()),
		logging.Int64("bytes_written", s.queue.BytesWritten()),
		logging.String(logging.FieldImpact, "further audio is dropped"),
	)
	s.requestStop(StopRequest{
		Reason: ReasonSizeLimit,
		Err:    services.Wrap(services.ErrCapacity, "capture", "write", ReasonSizeLimit, nil),
	})
}

// Stop ends the recording. Only the first call has any effect; every call
// waits until the streams are closed or ctx is done.
func (s *Session) Stop(ctx context.Context, req StopRequest) error {
	s.requestStop(req)
	select {
	case <-s.ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) requestStop(req StopRequest) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.stopReq = req
		if s.maxTimer != nil {
			s.maxTimer.Stop()
		}
		s.mu.Unlock()
		go s.shutdown(req)
	})
}

func (s *Session) shutdown(req StopRequest) {
	s.lifeCancel()

	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if connected {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		if err := s.opts.Transport.Leave(ctx); err != nil {
			logging.WarnWithContext(s.logger, "voice leave failed", "leave_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "transport may linger until it times out"),
			)
		}
		cancel()
	}

	s.mu.Lock()
	for num := uint32(1); num < s.nextTrack; num++ {
		if t := s.byNumber[num]; t != nil {
			s.flushAllLocked(t)
		}
	}
	s.mu.Unlock()

	s.identities.Wait()

	reason := req.Reason
	if reason == "" {
		reason = ReasonRequested
	}
	attrs := []logging.Attr{
		logging.String("reason", reason),
		logging.Bool("expected", req.Expected),
		logging.Int64("bytes_written", s.queue.BytesWritten()),
	}
	if req.ActorID != "" {
		attrs = append(attrs, logging.String("actor_id", req.ActorID))
	}
	s.logger.Info("recording stopping", logging.Args(attrs...)...)

	if err := s.queue.Close(); err != nil {
		logging.WarnWithContext(s.logger, "closing recording streams failed", "stream_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "trailing data may be incomplete"),
		)
	}

	s.mu.Lock()
	if s.state == StateError {
		s.errored = true
	}
	s.setStateLocked(StateEnded)
	end := s.now()
	duration := time.Duration(0)
	if !s.startedAt.IsZero() {
		duration = end.Sub(s.startedAt)
	}
	s.summary = Summary{
		RecordingID:  s.opts.ID,
		RequesterID:  s.opts.RequesterID,
		GuildID:      s.opts.GuildID,
		ChannelID:    s.opts.ChannelID,
		StartTime:    s.startedAt,
		Duration:     duration,
		Automatic:    s.opts.Automatic,
		UsedBridge:   s.usedBridge,
		Errored:      s.errored,
		Reason:       reason,
		ActorID:      req.ActorID,
		Err:          req.Err,
		BytesWritten: s.queue.BytesWritten(),
		Tracks:       len(s.tracks),
		Notes:        s.notes,
	}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.RecordingEnded(reason)
	}
	if s.opts.EndHook != nil {
		s.opts.EndHook(s.summary)
	}
	close(s.ended)
}

// setStateLocked applies a legal transition and reports whether it happened.
func (s *Session) setStateLocked(to State) bool {
	from := s.state
	if !CanTransition(from, to) {
		return false
	}
	s.state = to
	if to == StateError {
		s.errored = true
	}
	s.activity.add(s.now(), "state "+from.String()+" -> "+to.String())
	s.logger.Debug("state changed", logging.String("from", from.String()), logging.String("state", to.String()))
	return true
}

// acceptingLocked reports whether audio may be captured right now.
func (s *Session) acceptingLocked() bool {
	if s.stopping {
		return false
	}
	return s.state == StateRecording || s.state == StateReconnecting
}

// elapsedLocked returns the local granule for now.
func (s *Session) elapsedLocked() uint64 {
	if s.startedAt.IsZero() {
		return 0
	}
	d := s.now().Sub(s.startedAt)
	if d < 0 {
		return 0
	}
	return uint64(d/time.Second)*SampleRate + uint64(d%time.Second)*SampleRate/uint64(time.Second)
}

// Elapsed returns the current local granule estimate.
func (s *Session) Elapsed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

// AddObserver registers o for track events.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters o.
func (s *Session) RemoveObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.observers {
		if cur == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// RaiseCeiling grows the byte ceiling to at least n.
func (s *Session) RaiseCeiling(n int64) {
	before := s.queue.Ceiling()
	s.queue.RaiseCeiling(n)
	if after := s.queue.Ceiling(); after != before {
		s.logger.Info("size limit raised", logging.Int64("size_limit_bytes", after))
	}
}

// Snapshot is a point-in-time view of a recording.
type Snapshot struct {
	ID           string          `json:"id"`
	State        string          `json:"state"`
	StartedAt    time.Time       `json:"started_at"`
	BytesWritten int64           `json:"bytes_written"`
	Ceiling      int64           `json:"size_limit_bytes"`
	Dropped      int64           `json:"dropped_writes"`
	UsedBridge   bool            `json:"used_bridge"`
	Notes        int             `json:"notes"`
	Tracks       []TrackInfo     `json:"tracks"`
	Activity     []ActivityEntry `json:"activity"`
}

// Snapshot returns the current view of the recording.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:         s.opts.ID,
		State:      s.state.String(),
		StartedAt:  s.startedAt,
		UsedBridge: s.usedBridge,
		Notes:      s.notes,
		Tracks:     s.tracksLocked(),
	}
	s.mu.Unlock()
	snap.BytesWritten = s.queue.BytesWritten()
	snap.Ceiling = s.queue.Ceiling()
	snap.Dropped = s.queue.Dropped()
	snap.Activity = s.activity.snapshot()
	return snap
}

// Tracks returns every track in allocation order.
func (s *Session) Tracks() []TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracksLocked()
}

func (s *Session) tracksLocked() []TrackInfo {
	out := make([]TrackInfo, 0, len(s.byNumber))
	for num := uint32(1); num < s.nextTrack; num++ {
		if t := s.byNumber[num]; t != nil {
			out = append(out, t.info())
		}
	}
	return out
}
