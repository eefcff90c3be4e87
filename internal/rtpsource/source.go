package rtpsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/rtp"

	"voxtape/internal/capture"
	"voxtape/internal/logging"
	"voxtape/internal/services"
)

const readBufferSize = 1 << 16

// Source is a capture.Transport listening for RTP on one UDP address.
type Source struct {
	bind     string
	speakers map[uint32]string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    net.PacketConn
	leaving bool
	done    chan struct{}
}

// New validates the SSRC table and returns an unconnected source. Keys of
// ssrcMap are decimal SSRCs; values are speaker ids.
func New(bind string, ssrcMap map[string]string, logger *slog.Logger) (*Source, error) {
	if strings.TrimSpace(bind) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "rtpsource", "new", "rtp bind address required", nil)
	}
	speakers := make(map[uint32]string, len(ssrcMap))
	for raw, speaker := range ssrcMap {
		ssrc, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "rtpsource", "new", fmt.Sprintf("invalid ssrc %q", raw), err)
		}
		if speaker = strings.TrimSpace(speaker); speaker == "" {
			return nil, services.Wrap(services.ErrConfiguration, "rtpsource", "new", fmt.Sprintf("empty speaker for ssrc %d", ssrc), nil)
		}
		speakers[uint32(ssrc)] = speaker
	}
	return &Source{
		bind:     bind,
		speakers: speakers,
		logger:   logging.NewComponentLogger(logger, "rtpsource"),
	}, nil
}

// Addr returns the bound address while connected.
func (s *Source) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Connect binds the UDP socket and starts delivering packets to h. It may be
// called again after a lost connection.
func (s *Source) Connect(ctx context.Context, h capture.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return services.Wrap(services.ErrValidation, "rtpsource", "connect", "already connected", nil)
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", s.bind)
	if err != nil {
		return services.Wrap(services.ErrConnection, "rtpsource", "listen", s.bind, err)
	}
	s.conn = conn
	s.leaving = false
	s.done = make(chan struct{})
	go s.readLoop(conn, h, s.done)
	s.logger.Info("rtp source listening", logging.String("bind", conn.LocalAddr().String()))
	return nil
}

// Leave closes the socket. The handler then sees an expected disconnect.
func (s *Source) Leave(ctx context.Context) error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.leaving = true
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return services.Wrap(services.ErrConnection, "rtpsource", "leave", "close socket", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) readLoop(conn net.PacketConn, h capture.Handler, done chan struct{}) {
	defer close(done)
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			s.mu.Lock()
			expected := s.leaving
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			_ = conn.Close()
			h.OnDisconnect(expected, err)
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debug("dropping malformed rtp packet", logging.Int("bytes", n), logging.Error(err))
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		h.OnData(pkt.Payload, s.speaker(pkt.SSRC), pkt.Timestamp)
	}
}

func (s *Source) speaker(ssrc uint32) string {
	if id, ok := s.speakers[ssrc]; ok {
		return id
	}
	return "ssrc:" + strconv.FormatUint(uint64(ssrc), 10)
}
