package capture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"voxtape/internal/oggpage"
)

func TestWriteQueueAudioFramesInOrder(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<20, nil, nil)

	if err := q.SubmitAudio(1, 2, 960, 111, []byte{0xFC, 1, 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := q.SubmitAudio(1, 4, 1920, 222, []byte{0xFC, 3, 4}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	pages := readPages(t, mem.data.Bytes())
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	want := []struct {
		seq     uint32
		granule uint64
		size    int
	}{
		{2, 960, 3},
		{3, 111, 0},
		{4, 1920, 3},
		{5, 222, 0},
	}
	for i, w := range want {
		p := pages[i]
		if p.StreamID != 1 || p.Sequence != w.seq || p.Granule != w.granule || len(p.Payload) != w.size {
			t.Fatalf("page %d = {stream %d seq %d granule %d len %d}, want seq %d granule %d len %d",
				i, p.StreamID, p.Sequence, p.Granule, len(p.Payload), w.seq, w.granule, w.size)
		}
	}
	if got := q.BytesWritten(); got != int64(len(mem.data.Bytes())) {
		t.Fatalf("BytesWritten = %d, data stream holds %d", got, len(mem.data.Bytes()))
	}
	if !mem.data.isClosed() || !mem.log.isClosed() {
		t.Fatal("streams not closed")
	}
}

func TestWriteQueueTrackHeaders(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<20, nil, nil)
	_ = q.SubmitTrackHeader(3, CodecFLAC48k)
	_ = q.Close()

	h1 := readPages(t, mem.header1.Bytes())
	h2 := readPages(t, mem.header2.Bytes())
	if len(h1) != 1 || len(h2) != 1 {
		t.Fatalf("expected one page per header stream, got %d and %d", len(h1), len(h2))
	}
	if h1[0].StreamID != 3 || h1[0].Sequence != 0 || h1[0].Flags != oggpage.FlagBOS {
		t.Fatalf("unexpected identification page %+v", h1[0])
	}
	if !bytes.Equal(h1[0].Payload, IdentificationPacket(CodecFLAC48k)) {
		t.Fatal("identification payload mismatch")
	}
	if h2[0].StreamID != 3 || h2[0].Sequence != 1 || h2[0].Flags != 0 {
		t.Fatalf("unexpected tags page %+v", h2[0])
	}
	if len(mem.data.Bytes()) != 0 || q.BytesWritten() != 0 {
		t.Fatal("headers must not count toward the data stream")
	}
}

func TestWriteQueueUserMetadataLines(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<20, nil, nil)
	_ = q.SubmitUserMetadata(1, Identity{ID: "42", Name: "alice", Avatar: "https://cdn.example/a.png"})
	_ = q.SubmitUserMetadata(2, UnknownIdentity("77"))
	_ = q.Close()

	sc := bufio.NewScanner(bytes.NewReader(mem.users.Bytes()))
	var lines []map[string]Identity
	for sc.Scan() {
		var m map[string]Identity
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["1"].Name != "alice" || lines[0]["1"].Unknown {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if !lines[1]["2"].Unknown || lines[1]["2"].ID != "77" {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
}

func TestWriteQueueNotes(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<20, nil, nil)
	_ = q.SubmitNote(48000, "first")
	_ = q.SubmitNote(96000, "second")
	_ = q.Close()

	h1 := readPages(t, mem.header1.Bytes())
	if len(h1) != 1 {
		t.Fatalf("note header written %d times", len(h1))
	}
	if h1[0].StreamID != NoteTrack || string(h1[0].Payload) != "STREAMNOTE" || h1[0].Flags != oggpage.FlagBOS {
		t.Fatalf("unexpected note header %+v", h1[0])
	}

	data := readPages(t, mem.data.Bytes())
	if len(data) != 2 {
		t.Fatalf("expected 2 note pages, got %d", len(data))
	}
	if string(data[0].Payload) != "NOTEfirst" || data[0].Sequence != 1 || data[0].Granule != 48000 {
		t.Fatalf("unexpected first note %+v", data[0])
	}
	if string(data[1].Payload) != "NOTEsecond" || data[1].Sequence != 2 {
		t.Fatalf("unexpected second note %+v", data[1])
	}
}

func TestWriteQueueSplitsLongNotes(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<20, nil, nil)
	long := strings.Repeat("n", oggpage.MaxPayload)
	_ = q.SubmitNote(0, long)
	_ = q.Close()

	data := readPages(t, mem.data.Bytes())
	if len(data) != 2 {
		t.Fatalf("expected long note split into 2 packets, got %d", len(data))
	}
	var joined strings.Builder
	for _, p := range data {
		if !bytes.HasPrefix(p.Payload, []byte("NOTE")) {
			t.Fatalf("packet missing prefix: %q", p.Payload[:8])
		}
		joined.Write(p.Payload[4:])
	}
	if joined.String() != long {
		t.Fatal("split note does not reassemble")
	}
}

func TestWriteQueueCeilingFiresOnceUnderConcurrency(t *testing.T) {
	streams, mem := newMemStreams()
	var fired atomic.Int32
	ceiling := int64(2000)
	q := NewWriteQueue(streams, ceiling, func() { fired.Add(1) }, nil)

	payload := bytes.Repeat([]byte{0xFC}, 40)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(track uint32) {
			defer wg.Done()
			for i := uint32(0); i < 50; i++ {
				_ = q.SubmitAudio(track, 2+2*i, uint64(i)*960, uint64(i), payload)
			}
		}(uint32(g + 1))
	}
	wg.Wait()
	_ = q.Close()

	if got := fired.Load(); got != 1 {
		t.Fatalf("limit callback fired %d times, want 1", got)
	}
	if !q.LimitReached() {
		t.Fatal("expected LimitReached")
	}
	if q.BytesWritten() > ceiling {
		t.Fatalf("wrote %d bytes past ceiling %d", q.BytesWritten(), ceiling)
	}
	if q.Dropped() == 0 {
		t.Fatal("expected dropped writes")
	}
	if int64(len(mem.data.Bytes())) != q.BytesWritten() {
		t.Fatal("byte counter disagrees with data stream")
	}
	// Whole frames only: every payload page has its annotation page.
	if n := len(readPages(t, mem.data.Bytes())); n%2 != 0 {
		t.Fatalf("odd page count %d", n)
	}
}

func TestWriteQueueRaiseCeilingOnlyGrows(t *testing.T) {
	streams, _ := newMemStreams()
	q := NewWriteQueue(streams, 1000, nil, nil)
	defer q.Close()

	q.RaiseCeiling(500)
	if q.Ceiling() != 1000 {
		t.Fatalf("ceiling shrank to %d", q.Ceiling())
	}
	q.RaiseCeiling(4000)
	if q.Ceiling() != 4000 {
		t.Fatalf("ceiling = %d, want 4000", q.Ceiling())
	}
}

func TestWriteQueueDrainsBeforeClose(t *testing.T) {
	streams, mem := newMemStreams()
	q := NewWriteQueue(streams, 1<<30, nil, nil)
	for i := 0; i < 500; i++ {
		_ = q.SubmitLogLine("line")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := strings.Count(string(mem.log.Bytes()), "line\n"); got != 500 {
		t.Fatalf("log holds %d lines, want 500", got)
	}
	if err := q.SubmitLogLine("late"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("submit after close = %v, want ErrQueueClosed", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type failingStream struct{ memStream }

func (f *failingStream) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteQueueSwallowsWriteErrors(t *testing.T) {
	streams, mem := newMemStreams()
	streams.Users = &failingStream{}
	q := NewWriteQueue(streams, 1<<20, nil, nil)
	_ = q.SubmitUserMetadata(1, UnknownIdentity("1"))
	_ = q.SubmitLogLine("after failure")
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(string(mem.log.Bytes()), "after failure") {
		t.Fatal("queue stopped after a failed task")
	}
}
