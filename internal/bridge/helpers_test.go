package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"voxtape/internal/capture"
	"voxtape/internal/wire"
)

const testRecordingID = "0b5f1e9a-6c1e-4f7e-9a53-6f1d2b7c8e90"

type nopTransport struct{}

func (nopTransport) Connect(context.Context, capture.Handler) error { return nil }
func (nopTransport) Leave(context.Context) error                    { return nil }

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed []wire.CloseReason
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closed) > 0 {
		return errConnClosed
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close(reason wire.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, reason)
}

func (c *fakeConn) closeReason() (wire.CloseReason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closed) == 0 {
		return 0, false
	}
	return c.closed[0], true
}

func (c *fakeConn) messages(t *testing.T) []wire.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, err := wire.Unmarshal(f)
		if err != nil {
			t.Fatalf("server sent undecodable frame %x: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func speeches(msgs []wire.Message) []wire.Speech {
	var out []wire.Speech
	for _, m := range msgs {
		if s, ok := m.(wire.Speech); ok {
			out = append(out, s)
		}
	}
	return out
}

func users(msgs []wire.Message) []wire.User {
	var out []wire.User
	for _, m := range msgs {
		if u, ok := m.(wire.User); ok {
			out = append(out, u)
		}
	}
	return out
}

func hasUser(msgs []wire.Message, want wire.User) bool {
	for _, u := range users(msgs) {
		if u == want {
			return true
		}
	}
	return false
}

type fakeTimer struct {
	owner   *fakeTimers
	d       time.Duration
	f       func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	ft.owner.mu.Lock()
	defer ft.owner.mu.Unlock()
	was := !ft.stopped
	ft.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{owner: f, d: d, f: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) all() []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTimer(nil), f.timers...)
}

// fire runs every armed timer as if its delay had passed.
func (f *fakeTimers) fire() int {
	f.mu.Lock()
	var due []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	f.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

type fixture struct {
	session *capture.Session
	bridge  *Bridge
	timers  *fakeTimers
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	streams, err := capture.OpenFileStreams(t.TempDir(), testRecordingID)
	if err != nil {
		t.Fatalf("OpenFileStreams: %v", err)
	}
	session, err := capture.New(capture.Options{
		ID:        testRecordingID,
		IngestKey: "ingest-secret",
		Streams:   streams,
		Limits:    capture.DefaultLimits(),
		Transport: nopTransport{},
	})
	if err != nil {
		t.Fatalf("capture.New: %v", err)
	}
	if err := session.Start(context.Background(), capture.Policy{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = session.Stop(ctx, capture.StopRequest{Reason: capture.ReasonShutdown})
	})

	timers := &fakeTimers{}
	opts := Options{
		SizeLimitBytes: 1 << 30,
		AfterFunc:      timers.AfterFunc,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &fixture{session: session, bridge: New(session, opts), timers: timers}
}

func (f *fixture) connect(t *testing.T, msgs ...wire.Message) (*Peer, *fakeConn, error) {
	t.Helper()
	conn := &fakeConn{}
	p := f.bridge.Accept(conn)
	for _, m := range msgs {
		if err := p.Handle(wire.Marshal(m)); err != nil {
			return p, conn, err
		}
	}
	return p, conn, nil
}

func (f *fixture) mustLogin(t *testing.T, flags wire.Flags, nick string) (*Peer, *fakeConn) {
	t.Helper()
	p, conn, err := f.connect(t, wire.Login{Flags: flags, Nick: nick})
	if err != nil {
		t.Fatalf("login %q: %v", nick, err)
	}
	return p, conn
}

func welcomeOf(t *testing.T, conn *fakeConn) wire.Welcome {
	t.Helper()
	msgs := conn.messages(t)
	if len(msgs) == 0 {
		t.Fatal("no frames sent")
	}
	w, ok := msgs[0].(wire.Welcome)
	if !ok {
		t.Fatalf("first frame %#v, want welcome", msgs[0])
	}
	return w
}

var (
	opusData    = wire.NewFlags(wire.RoleData, wire.CodecOpus, false)
	flacData    = wire.NewFlags(wire.RoleData, wire.CodecFLAC, false)
	monitorOnly = wire.NewFlags(wire.RoleMonitor, wire.CodecOpus, false)
	pingOnly    = wire.NewFlags(wire.RolePing, wire.CodecOpus, false)
	voiced      = []byte{0xFC, 1, 2, 3, 4, 5, 6, 7, 8, 9}
)
