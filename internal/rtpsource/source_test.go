package rtpsource

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	"voxtape/internal/services"
)

type packet struct {
	payload []byte
	speaker string
	ts      uint32
}

type recorder struct {
	mu          sync.Mutex
	packets     []packet
	disconnects []bool
}

func (r *recorder) OnData(payload []byte, speakerID string, timestamp uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, packet{append([]byte(nil), payload...), speakerID, timestamp})
}

func (r *recorder) OnDisconnect(expected bool, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, expected)
}

func (r *recorder) snapshot() ([]packet, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]packet(nil), r.packets...), append([]bool(nil), r.disconnects...)
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

func send(t *testing.T, conn net.Conn, ssrc, ts uint32, payload []byte) {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    120,
			SequenceNumber: uint16(ts / 960),
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal rtp: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSourceDeliversMappedSpeakers(t *testing.T) {
	src, err := New("127.0.0.1:0", map[string]string{"1234": "alice"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{}
	if err := src.Connect(context.Background(), rec); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := src.Connect(context.Background(), rec); err == nil {
		t.Fatal("second Connect should fail while connected")
	}

	conn, err := net.Dial("udp", src.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send(t, conn, 1234, 960, []byte{0xFC, 1, 2})
	if _, err := conn.Write([]byte{0x00, 0x01}); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	send(t, conn, 99, 1920, []byte{0xFC, 3})

	waitFor(t, "two packets", func() bool {
		pkts, _ := rec.snapshot()
		return len(pkts) == 2
	})
	pkts, _ := rec.snapshot()
	if pkts[0].speaker != "alice" || pkts[0].ts != 960 || len(pkts[0].payload) != 3 {
		t.Fatalf("first packet %+v", pkts[0])
	}
	if pkts[1].speaker != "ssrc:99" || pkts[1].ts != 1920 {
		t.Fatalf("second packet %+v", pkts[1])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := src.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	_, disconnects := rec.snapshot()
	if len(disconnects) != 1 || !disconnects[0] {
		t.Fatalf("disconnects = %v, want one expected", disconnects)
	}
	if src.Addr() != nil {
		t.Fatal("address still reported after leave")
	}

	// A left source can be connected again.
	if err := src.Connect(context.Background(), rec); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := src.Leave(ctx); err != nil {
		t.Fatalf("second Leave: %v", err)
	}
}

func TestNewRejectsBadTable(t *testing.T) {
	if _, err := New("127.0.0.1:0", map[string]string{"abc": "x"}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("bad ssrc = %v", err)
	}
	if _, err := New("127.0.0.1:0", map[string]string{"1": " "}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("empty speaker = %v", err)
	}
	if _, err := New("", nil, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("empty bind = %v", err)
	}
}

func TestLeaveWithoutConnect(t *testing.T) {
	src, err := New("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := src.Leave(context.Background()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
}
