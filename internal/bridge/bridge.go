package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voxtape/internal/capture"
	"voxtape/internal/logging"
	"voxtape/internal/wire"
)

// Session is the part of a recording the bridge drives. *capture.Session
// implements it.
type Session interface {
	ID() string
	IngestKey() string
	StartTime() time.Time
	Elapsed() uint64
	Tracks() []capture.TrackInfo
	AttachTrack(key string, codec capture.CodecKind, identity capture.Identity) (capture.TrackInfo, error)
	IngestBridged(track uint32, payload []byte, granule uint64) error
	RaiseCeiling(n int64)
	AddObserver(o capture.Observer)
	RemoveObserver(o capture.Observer)
}

// Conn is one peer connection. Send must not block and must be safe for
// concurrent use; Close must be idempotent.
type Conn interface {
	Send(frame []byte) error
	Close(reason wire.CloseReason)
}

// Timer is the subset of *time.Timer the debounce needs.
type Timer interface {
	Stop() bool
}

// Options tunes a Bridge. Zero values take the defaults below.
type Options struct {
	SizeLimitBytes   int64
	SpeakingDebounce time.Duration
	GranuleTolerance time.Duration
	MaxNickSuffix    int
	Logger           *slog.Logger
	Now              func() time.Time
	AfterFunc        func(d time.Duration, f func()) Timer
}

const (
	defaultSpeakingDebounce = 2 * time.Second
	defaultGranuleTolerance = 30 * time.Second
	defaultMaxNickSuffix    = 15
)

func (o Options) withDefaults() Options {
	if o.SpeakingDebounce <= 0 {
		o.SpeakingDebounce = defaultSpeakingDebounce
	}
	if o.GranuleTolerance <= 0 {
		o.GranuleTolerance = defaultGranuleTolerance
	}
	if o.MaxNickSuffix <= 0 {
		o.MaxNickSuffix = defaultMaxNickSuffix
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return o
}

type speech struct {
	speaking bool
	gen      uint64
	timer    Timer
}

// Bridge relays one recording to its wire peers.
//
// Observer callbacks arrive with the session lock held and take b.mu, so
// nothing may call into the session while holding b.mu.
type Bridge struct {
	session Session
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	closed    bool
	peers     map[*Peer]struct{}
	nicks     map[string]*Peer
	connected map[uint32]*Peer
	speech    map[uint32]*speech
}

// New attaches a bridge to session.
func New(session Session, opts Options) *Bridge {
	opts = opts.withDefaults()
	b := &Bridge{
		session:   session,
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "bridge").With(logging.RecordingID(session.ID())),
		peers:     make(map[*Peer]struct{}),
		nicks:     make(map[string]*Peer),
		connected: make(map[uint32]*Peer),
		speech:    make(map[uint32]*speech),
	}
	session.AddObserver(b)
	return b
}

// ID returns the recording the bridge serves.
func (b *Bridge) ID() string { return b.session.ID() }

// IngestKey returns the key peers must present to connect.
func (b *Bridge) IngestKey() string { return b.session.IngestKey() }

// Accept registers a new connection. The peer is closed immediately when
// the recording has already ended.
func (b *Bridge) Accept(conn Conn) *Peer {
	p := &Peer{bridge: b, conn: conn, sampleRate: 48000}
	b.mu.Lock()
	if b.closed {
		p.gone = true
		b.mu.Unlock()
		conn.Close(wire.CloseRecordingEnded)
		return p
	}
	b.peers[p] = struct{}{}
	b.mu.Unlock()
	return p
}

// Peers returns the number of open connections.
func (b *Bridge) Peers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// Close detaches the bridge from the session and closes every peer with
// reason.
func (b *Bridge) Close(reason wire.CloseReason) {
	b.session.RemoveObserver(b)
	b.closeAll(reason)
}

func (b *Bridge) closeAll(reason wire.CloseReason) {
	b.mu.Lock()
	b.closed = true
	peers := make([]*Peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	for _, st := range b.speech {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	b.speech = make(map[uint32]*speech)
	b.mu.Unlock()

	for _, p := range peers {
		p.conn.Close(reason)
		p.Disconnect()
	}
}

// reserveNick claims nick, or the first free suffixed form of it. Names are
// scoped by wire codec and continuous mode; the FLAC sample rate does not
// split them.
func (b *Bridge) reserveNick(p *Peer, flags wire.Flags, nick string) (string, bool) {
	scope := flags.Codec().String()
	if flags.Continuous() {
		scope += "+continuous"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 1; i <= b.opts.MaxNickSuffix; i++ {
		candidate := nick
		if i > 1 {
			candidate = fmt.Sprintf("%s (%d)", nick, i)
		}
		key := scope + "\x00" + candidate
		if _, taken := b.nicks[key]; taken {
			continue
		}
		b.nicks[key] = p
		p.nickKey = key
		p.nick = candidate
		return candidate, true
	}
	return "", false
}

func (b *Bridge) releaseNick(p *Peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.nickKey != "" && b.nicks[p.nickKey] == p {
		delete(b.nicks, p.nickKey)
	}
	p.nickKey = ""
}

// goLive marks p as a monitor and, for data peers, as the live owner of its
// track. It returns the other monitors to notify.
func (b *Bridge) goLive(p *Peer, role wire.Role, track uint32) ([]*Peer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || p.gone {
		return nil, false
	}
	p.role = role
	p.track = track
	p.live = true
	if role == wire.RoleData && track != 0 {
		b.connected[track] = p
	}
	return b.monitorsLocked(p), true
}

// monitorsLocked returns every logged-in non-ping peer except skip.
func (b *Bridge) monitorsLocked(skip *Peer) []*Peer {
	out := make([]*Peer, 0, len(b.peers))
	for p := range b.peers {
		if p == skip || !p.live || p.role == wire.RolePing {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (b *Bridge) broadcast(peers []*Peer, msgs ...wire.Message) {
	if len(peers) == 0 || len(msgs) == 0 {
		return
	}
	frames := make([][]byte, len(msgs))
	for i, m := range msgs {
		frames[i] = wire.Marshal(m)
	}
	for _, p := range peers {
		for _, f := range frames {
			if err := p.conn.Send(f); err != nil {
				b.logger.Debug("dropping frame for slow peer", logging.Error(err))
				break
			}
		}
	}
}

// roster builds the presence and speaking replay for a newly live peer.
func (b *Bridge) roster(tracks []capture.TrackInfo) []wire.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var msgs []wire.Message
	for _, info := range tracks {
		if info.Bridged && b.connected[info.Number] == nil {
			continue
		}
		msgs = append(msgs, presence(info, true)...)
		if st := b.speech[info.Number]; st != nil && st.speaking {
			msgs = append(msgs, wire.Speech{Track: info.Number, Speaking: true})
		}
	}
	return msgs
}

func presence(info capture.TrackInfo, connected bool) []wire.Message {
	msgs := []wire.Message{wire.User{Track: info.Number, Connected: connected, Nick: info.Identity.Name}}
	if connected && info.Identity.Avatar != "" {
		msgs = append(msgs, wire.UserExtra{Track: info.Number, Type: wire.UserExtraAvatar, Data: info.Identity.Avatar})
	}
	return msgs
}

// clampGranule replaces a client granule that strays more than tol from the
// server estimate now.
func clampGranule(granule, now, tol uint64) uint64 {
	if granule > now && granule-now > tol {
		return now
	}
	if granule < now && now-granule > tol {
		return now
	}
	return granule
}

func (b *Bridge) granuleTolerance() uint64 {
	return uint64(b.opts.GranuleTolerance / time.Millisecond * capture.SampleRate / 1000)
}

// sinceStart returns milliseconds since the recording started.
func (b *Bridge) sinceStart() float64 {
	start := b.session.StartTime()
	if start.IsZero() {
		return 0
	}
	return float64(b.opts.Now().Sub(start)) / float64(time.Millisecond)
}

// TrackAdded implements capture.Observer. Bridged presence follows the peer
// connection instead and is announced at login.
func (b *Bridge) TrackAdded(info capture.TrackInfo) {
	if info.Bridged {
		return
	}
	b.mu.Lock()
	peers := b.monitorsLocked(nil)
	b.mu.Unlock()
	b.broadcast(peers, presence(info, true)...)
}

// TrackUpdated implements capture.Observer.
func (b *Bridge) TrackUpdated(info capture.TrackInfo) {
	b.mu.Lock()
	if info.Bridged && b.connected[info.Number] == nil {
		b.mu.Unlock()
		return
	}
	peers := b.monitorsLocked(nil)
	b.mu.Unlock()
	b.broadcast(peers, presence(info, true)...)
}

// TrackPacket implements capture.Observer. Voiced packets mark the track as
// speaking and push back the debounce; silent packets leave the timer alone.
func (b *Bridge) TrackPacket(track uint32, codec capture.CodecKind, payload []byte) {
	if codec.Silent(payload) {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	st := b.speech[track]
	if st == nil {
		st = &speech{}
		b.speech[track] = st
	}
	st.gen++
	gen := st.gen
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = b.opts.AfterFunc(b.opts.SpeakingDebounce, func() { b.speechTimeout(track, gen) })
	started := !st.speaking
	st.speaking = true
	var peers []*Peer
	if started {
		peers = b.monitorsLocked(nil)
	}
	b.mu.Unlock()
	if started {
		b.broadcast(peers, wire.Speech{Track: track, Speaking: true})
	}
}

func (b *Bridge) speechTimeout(track uint32, gen uint64) {
	b.mu.Lock()
	st := b.speech[track]
	if st == nil || st.gen != gen || !st.speaking {
		b.mu.Unlock()
		return
	}
	st.speaking = false
	st.timer = nil
	peers := b.monitorsLocked(nil)
	b.mu.Unlock()
	b.broadcast(peers, wire.Speech{Track: track, Speaking: false})
}

// RecordingEnded implements capture.Observer.
func (b *Bridge) RecordingEnded(reason string) {
	b.logger.Debug("recording ended; closing peers", logging.String("reason", reason))
	b.closeAll(wire.CloseRecordingEnded)
}
