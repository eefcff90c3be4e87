package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"voxtape/internal/oggpage"
)

type memStream struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (m *memStream) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("write on closed stream")
	}
	return m.buf.Write(p)
}

func (m *memStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStream) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf.Bytes()...)
}

func (m *memStream) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type memStreams struct {
	data, header1, header2, users, log *memStream
}

func newMemStreams() (Streams, *memStreams) {
	m := &memStreams{
		data:    &memStream{},
		header1: &memStream{},
		header2: &memStream{},
		users:   &memStream{},
		log:     &memStream{},
	}
	return Streams{Data: m.data, Header1: m.header1, Header2: m.header2, Users: m.users, Log: m.log}, m
}

func readPages(t *testing.T, data []byte) []oggpage.Page {
	t.Helper()
	r := oggpage.NewReader(bytes.NewReader(data))
	var pages []oggpage.Page
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return pages
		}
		if err != nil {
			t.Fatalf("read page %d: %v", len(pages), err)
		}
		pages = append(pages, p)
	}
}

type fakeTransport struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	leaves      int
	handler     Handler
	// hold, when set, keeps the next Connect pending until it is closed.
	hold chan struct{}
}

func (f *fakeTransport) Connect(_ context.Context, h Handler) error {
	f.mu.Lock()
	f.connects++
	hold := f.hold
	f.hold = nil
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) Leave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeTransport) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.leaves
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sessionFixture struct {
	session   *Session
	streams   *memStreams
	transport *fakeTransport
	clock     *fakeClock

	hookMu    sync.Mutex
	summaries []Summary
}

func (f *sessionFixture) hookCalls() []Summary {
	f.hookMu.Lock()
	defer f.hookMu.Unlock()
	return append([]Summary(nil), f.summaries...)
}

func newSessionFixture(t *testing.T, mutate func(*Options)) *sessionFixture {
	t.Helper()
	streams, mem := newMemStreams()
	f := &sessionFixture{
		streams:   mem,
		transport: &fakeTransport{},
		clock:     newFakeClock(),
	}
	opts := Options{
		ID:          "rec-test",
		RequesterID: "user-1",
		GuildID:     "guild-1",
		ChannelID:   "channel-1",
		Streams:     streams,
		Limits:      DefaultLimits(),
		Transport:   f.transport,
		Now:         f.clock.Now,
		EndHook: func(s Summary) {
			f.hookMu.Lock()
			f.summaries = append(f.summaries, s)
			f.hookMu.Unlock()
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.session = s
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx, StopRequest{Reason: ReasonShutdown})
	})
	return f
}

func (f *sessionFixture) start(t *testing.T) {
	t.Helper()
	if err := f.session.Start(context.Background(), Policy{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (f *sessionFixture) stop(t *testing.T) Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.session.Stop(ctx, StopRequest{Expected: true, ActorID: "user-1"}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	return f.session.Summary()
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("recording did not end; state=%s", s.State())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var testTime = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
