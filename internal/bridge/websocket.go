package bridge

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxtape/internal/logging"
	"voxtape/internal/wire"
)

const (
	writeWait         = 10 * time.Second
	defaultSendBuffer = 256
	defaultReadLimit  = 1 << 16
)

var (
	errConnClosed = errors.New("connection closed")
	errSlowPeer   = errors.New("peer send buffer full")
)

// Server upgrades HTTP requests to wire peers. It expects to be mounted on
// a pattern with an {id} wildcard, and reads the ingest key from the "key"
// query parameter.
type Server struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	readLimit  int64
	sendBuffer int
	logger     *slog.Logger
}

// NewServer returns a handler for bridge connections. readLimit bounds a
// single inbound frame.
func NewServer(registry *Registry, readLimit int64, logger *slog.Logger) *Server {
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	return &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readLimit:  readLimit,
		sendBuffer: defaultSendBuffer,
		logger:     logging.NewComponentLogger(logger, "bridge"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.URL.Query().Get("key")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	conn := newWSConn(ws, s.sendBuffer)
	go conn.writeLoop()
	defer conn.wait()

	if _, err := uuid.Parse(id); err != nil {
		conn.Close(wire.CloseInvalidID)
		return
	}
	b, ok := s.registry.Lookup(id)
	if !ok {
		conn.Close(wire.CloseNotFound)
		return
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(b.IngestKey())) != 1 {
		logging.WarnWithContext(s.logger, "bridge peer rejected", "bridge_auth_failed",
			logging.RecordingID(id),
			logging.String("remote", r.RemoteAddr),
			logging.String(logging.FieldErrorHint, "peer presented the wrong ingest key"),
		)
		conn.Close(wire.CloseInvalidToken)
		return
	}

	peer := b.Accept(conn)
	defer peer.Disconnect()
	ws.SetReadLimit(s.readLimit)
	for {
		kind, frame, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, errConnClosed) {
				s.logger.Debug("bridge read ended", logging.RecordingID(id), logging.Error(err))
			}
			conn.Close(wire.CloseNormal)
			return
		}
		if kind != websocket.BinaryMessage {
			conn.Close(wire.CloseInvalidMessage)
			return
		}
		if err := peer.Handle(frame); err != nil {
			s.logger.Debug("closing bridge peer",
				logging.RecordingID(id),
				logging.String("reason", wire.ReasonOf(err).String()),
				logging.Error(err),
			)
			conn.Close(wire.ReasonOf(err))
			return
		}
	}
}

// wsConn serializes writes to a websocket through one goroutine. Send
// never blocks: a peer that falls a full buffer behind is dropped.
type wsConn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}

	mu      sync.Mutex
	closing bool
	reason  wire.CloseReason
	notify  bool
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		ws:   ws,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return errConnClosed
	}
	select {
	case c.out <- frame:
		return nil
	default:
		c.closing = true
		close(c.out)
		return errSlowPeer
	}
}

// Close flushes queued frames, sends a close message with reason and
// closes the socket.
func (c *wsConn) Close(reason wire.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.closing = true
	c.notify = true
	c.reason = reason
	close(c.out)
}

func (c *wsConn) wait() {
	<-c.done
}

func (c *wsConn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()
	for frame := range c.out {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			c.abandon()
			return
		}
	}

	c.mu.Lock()
	notify, reason := c.notify, c.reason
	c.mu.Unlock()
	if !notify {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.BinaryMessage, wire.Marshal(wire.Close{Reason: reason})); err != nil {
		return
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason.String()), deadline)
}

// abandon marks the connection closed after a write failure so later sends
// fail fast instead of filling the buffer.
func (c *wsConn) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closing {
		c.closing = true
		close(c.out)
	}
}
