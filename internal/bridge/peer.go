package bridge

import (
	"errors"

	"golang.org/x/text/unicode/norm"

	"voxtape/internal/capture"
	"voxtape/internal/logging"
	"voxtape/internal/wire"
)

// Peer is one wire connection. Handle is called from a single reader
// goroutine; Disconnect may be called from anywhere.
type Peer struct {
	bridge *Bridge
	conn   Conn

	loggedIn   bool
	sampleRate uint32

	// Guarded by bridge.mu.
	gone    bool
	live    bool
	role    wire.Role
	track   uint32
	nick    string
	nickKey string
}

// Handle processes one inbound frame. A returned error means the
// connection must be closed with wire.ReasonOf(err).
func (p *Peer) Handle(frame []byte) error {
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case wire.Ping:
		return p.send(wire.Pong{ClientTime: m.ClientTime, ServerTime: p.bridge.sinceStart()})
	case wire.Info:
		return p.info(m)
	case wire.Login:
		return p.login(m)
	case wire.Data:
		return p.data(m)
	case wire.Speech:
		// Speaking state is derived server side.
		return nil
	case wire.Close:
		p.conn.Close(wire.CloseNormal)
		p.Disconnect()
		return nil
	default:
		return wire.Refuse(wire.CloseInvalidMessage, msg.Op(), "server-only message")
	}
}

func (p *Peer) send(m wire.Message) error {
	return p.conn.Send(wire.Marshal(m))
}

func (p *Peer) info(m wire.Info) error {
	if m.Key != wire.InfoSampleRate || p.loggedIn {
		// Unknown keys are ignored; the rate is fixed once logged in.
		return nil
	}
	switch m.Value {
	case 44100, 48000:
		p.sampleRate = m.Value
		return nil
	default:
		return wire.Refuse(wire.CloseInvalidMessage, wire.OpInfo, "unsupported sample rate %d", m.Value)
	}
}

// codecKind maps login flags to the track codec.
func (p *Peer) codecKind(f wire.Flags) capture.CodecKind {
	switch {
	case f.Codec() == wire.CodecFLAC && f.Continuous():
		return capture.CodecFLACContinuous
	case f.Codec() == wire.CodecFLAC && p.sampleRate == 44100:
		return capture.CodecFLAC44k
	case f.Codec() == wire.CodecFLAC:
		return capture.CodecFLAC48k
	case f.Continuous():
		return capture.CodecMonoOpusContinuous
	default:
		return capture.CodecMonoOpus
	}
}

func (p *Peer) login(m wire.Login) error {
	if p.loggedIn {
		return wire.Refuse(wire.CloseInvalidConnectionType, wire.OpLogin, "already logged in")
	}
	if reason := m.Flags.Validate(); reason != wire.CloseNormal {
		return wire.Refuse(reason, wire.OpLogin, "flags %#x", uint32(m.Flags))
	}
	p.loggedIn = true
	b := p.bridge
	role := m.Flags.Role()
	if role != wire.RoleData {
		if err := p.send(wire.Welcome{StartTime: b.startMillis()}); err != nil {
			return err
		}
		if _, ok := b.goLive(p, role, 0); !ok {
			return wire.Refuse(wire.CloseRecordingEnded, wire.OpLogin, "recording ended")
		}
		if role == wire.RoleMonitor {
			return p.replay()
		}
		return nil
	}

	nick, err := wire.ValidateNick(m.Nick)
	if err != nil {
		return err
	}
	nick = norm.NFC.String(nick)
	kind := p.codecKind(m.Flags)
	nick, ok := b.reserveNick(p, m.Flags, nick)
	if !ok {
		return wire.Refuse(wire.CloseAlreadyConnected, wire.OpLogin, "no free nickname for %q", m.Nick)
	}

	identity := capture.Identity{ID: "web:" + nick, Name: nick}
	info, err := b.session.AttachTrack("web:"+kind.String()+":"+nick, kind, identity)
	if err != nil {
		b.releaseNick(p)
		if errors.Is(err, capture.ErrNotRecording) {
			return wire.Refuse(wire.CloseRecordingEnded, wire.OpLogin, "recording ended")
		}
		// Track capacity and anything else end this peer only.
		return &wire.ProtocolError{Reason: wire.CloseShardClosed, Op: wire.OpLogin, Err: err}
	}
	if kind.IsFLAC() || kind.Continuous() {
		b.session.RaiseCeiling(b.opts.SizeLimitBytes)
	}

	if err := p.send(wire.Welcome{Track: info.Number, StartTime: b.startMillis()}); err != nil {
		return err
	}
	others, ok := b.goLive(p, role, info.Number)
	if !ok {
		return wire.Refuse(wire.CloseRecordingEnded, wire.OpLogin, "recording ended")
	}
	b.logger.Info("bridge peer connected",
		logging.Track(info.Number),
		logging.String("nick", nick),
		logging.String("codec", kind.String()),
	)
	b.broadcast(others, presence(info, true)...)
	return p.replay()
}

// replay sends the full roster and current speaking state to p.
func (p *Peer) replay() error {
	msgs := p.bridge.roster(p.bridge.session.Tracks())
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) data(m wire.Data) error {
	if !p.loggedIn {
		return wire.Refuse(wire.CloseInvalidMessage, wire.OpData, "data before login")
	}
	b := p.bridge
	b.mu.Lock()
	role, track := p.role, p.track
	b.mu.Unlock()
	if role != wire.RoleData {
		return wire.Refuse(wire.CloseInvalidConnectionType, wire.OpData, "%s connections cannot send data", role)
	}

	now := b.session.Elapsed()
	granule := clampGranule(m.Granule, now, b.granuleTolerance())
	if granule != m.Granule {
		b.logger.Debug("client granule out of range; using server estimate",
			logging.Track(track),
			logging.Int64("client_granule", int64(m.Granule)),
			logging.Int64("server_granule", int64(now)),
		)
	}
	if err := b.session.IngestBridged(track, m.Payload, granule); err != nil {
		if errors.Is(err, capture.ErrNotRecording) {
			return wire.Refuse(wire.CloseRecordingEnded, wire.OpData, "recording ended")
		}
		return &wire.ProtocolError{Reason: wire.CloseShardClosed, Op: wire.OpData, Err: err}
	}
	return nil
}

// Disconnect removes the peer from the bridge. A data peer's track is
// announced as gone and stops speaking. Safe to call more than once.
func (p *Peer) Disconnect() {
	b := p.bridge
	b.mu.Lock()
	if p.gone {
		b.mu.Unlock()
		return
	}
	p.gone = true
	delete(b.peers, p)
	if p.nickKey != "" && b.nicks[p.nickKey] == p {
		delete(b.nicks, p.nickKey)
	}
	track, nick := p.track, p.nick
	owned := p.role == wire.RoleData && track != 0 && b.connected[track] == p
	var (
		peers       []*Peer
		wasSpeaking bool
	)
	if owned {
		delete(b.connected, track)
		if st := b.speech[track]; st != nil {
			wasSpeaking = st.speaking
			if st.timer != nil {
				st.timer.Stop()
			}
			delete(b.speech, track)
		}
		if !b.closed {
			peers = b.monitorsLocked(p)
		}
	}
	p.live = false
	b.mu.Unlock()

	if !owned {
		return
	}
	b.logger.Info("bridge peer disconnected", logging.Track(track), logging.String("nick", nick))
	var msgs []wire.Message
	if wasSpeaking {
		msgs = append(msgs, wire.Speech{Track: track, Speaking: false})
	}
	msgs = append(msgs, wire.User{Track: track, Connected: false, Nick: nick})
	b.broadcast(peers, msgs...)
}

func (b *Bridge) startMillis() float64 {
	start := b.session.StartTime()
	if start.IsZero() {
		return 0
	}
	return float64(start.UnixMilli())
}
