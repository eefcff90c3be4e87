package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxtape/internal/wire"
)

func newTestServer(t *testing.T, f *fixture) string {
	t.Helper()
	registry := NewRegistry()
	registry.Register(f.bridge)
	mux := http.NewServeMux()
	mux.Handle("GET /bridge/{id}", NewServer(registry, 0, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) wire.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type %d", kind)
	}
	m, err := wire.Unmarshal(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestServerRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	base := newTestServer(t, f)

	cases := []struct {
		name string
		path string
		want wire.CloseReason
	}{
		{"malformed id", "/bridge/not-an-id?key=ingest-secret", wire.CloseInvalidID},
		{"unknown recording", "/bridge/6f1d2b7c-0000-4f7e-9a53-0b5f1e9a6c1e?key=ingest-secret", wire.CloseNotFound},
		{"wrong key", "/bridge/" + testRecordingID + "?key=guess", wire.CloseInvalidToken},
		{"missing key", "/bridge/" + testRecordingID, wire.CloseInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ws := dial(t, base+tc.path)
			m := readMessage(t, ws)
			c, ok := m.(wire.Close)
			if !ok || c.Reason != tc.want {
				t.Fatalf("got %#v, want close %s", m, tc.want)
			}
		})
	}
}

func TestServerLoginAndProtocolError(t *testing.T) {
	f := newFixture(t, nil)
	base := newTestServer(t, f)

	ws := dial(t, base+"/bridge/"+testRecordingID+"?key=ingest-secret")
	login := wire.Marshal(wire.Login{Flags: opusData, Nick: "carol"})
	if err := ws.WriteMessage(websocket.BinaryMessage, login); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, ok := readMessage(t, ws).(wire.Welcome)
	if !ok || w.Track == 0 {
		t.Fatalf("expected welcome with a track, got %#v", w)
	}
	if u, ok := readMessage(t, ws).(wire.User); !ok || u.Nick != "carol" || u.Track != w.Track {
		t.Fatalf("expected own presence, got %#v", u)
	}

	if err := ws.WriteMessage(websocket.BinaryMessage, login); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, ok := readMessage(t, ws).(wire.Close)
	if !ok || c.Reason != wire.CloseInvalidConnectionType {
		t.Fatalf("expected close for second login, got %#v", c)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.bridge.Peers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("peer not released after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerRejectsTextFrames(t *testing.T) {
	f := newFixture(t, nil)
	ws := dial(t, newTestServer(t, f)+"/bridge/"+testRecordingID+"?key=ingest-secret")
	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if c, ok := readMessage(t, ws).(wire.Close); !ok || c.Reason != wire.CloseInvalidMessage {
		t.Fatalf("expected invalid message close, got %#v", c)
	}
}
