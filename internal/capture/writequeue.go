package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"voxtape/internal/logging"
	"voxtape/internal/oggpage"
)

// ErrQueueClosed is returned by Submit once Close has been called.
var ErrQueueClosed = errors.New("write queue closed")

type taskKind int

const (
	taskAudio taskKind = iota
	taskTrackHeader
	taskUserMetadata
	taskLogLine
	taskNote
)

type writeTask struct {
	kind      taskKind
	track     uint32
	seq       uint32
	granule   uint64
	timestamp uint64
	payload   []byte
	codec     CodecKind
	identity  Identity
	text      string
}

// WriteQueue serializes every write of a recording onto its five streams.
// Submissions never block; a single consumer goroutine executes tasks in
// submission order.
type WriteQueue struct {
	streams Streams
	data    *oggpage.Encoder
	header1 *oggpage.Encoder
	header2 *oggpage.Encoder
	logger  *slog.Logger

	mu     sync.Mutex
	tasks  []writeTask
	closed bool
	wake   chan struct{}
	done   chan struct{}

	written   atomic.Int64
	ceiling   atomic.Int64
	limitOnce sync.Once
	limitHit  atomic.Bool
	onLimit   func()
	dropped   atomic.Int64

	// Consumer-owned.
	noteHeaderWritten bool
	noteSeq           uint32
	closeErr          error
}

// NewWriteQueue starts a queue writing to streams. onLimit runs at most once,
// on the consumer goroutine, the first time an audio write is refused because
// the ceiling was reached; it must not block.
func NewWriteQueue(streams Streams, ceiling int64, onLimit func(), logger *slog.Logger) *WriteQueue {
	q := &WriteQueue{
		streams: streams,
		data:    oggpage.NewEncoder(streams.Data),
		header1: oggpage.NewEncoder(streams.Header1),
		header2: oggpage.NewEncoder(streams.Header2),
		logger:  logging.NewComponentLogger(logger, "writequeue"),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onLimit: onLimit,
		noteSeq: 1,
	}
	q.ceiling.Store(ceiling)
	go q.run()
	return q
}

// BytesWritten returns the bytes appended to the data stream so far.
func (q *WriteQueue) BytesWritten() int64 {
	return q.written.Load()
}

// Ceiling returns the current byte ceiling.
func (q *WriteQueue) Ceiling() int64 {
	return q.ceiling.Load()
}

// Dropped returns how many data writes were refused at the ceiling.
func (q *WriteQueue) Dropped() int64 {
	return q.dropped.Load()
}

// LimitReached reports whether the ceiling has refused a write.
func (q *WriteQueue) LimitReached() bool {
	return q.limitHit.Load()
}

// RaiseCeiling grows the ceiling to at least n. It never shrinks.
func (q *WriteQueue) RaiseCeiling(n int64) {
	for {
		cur := q.ceiling.Load()
		if n <= cur {
			return
		}
		if q.ceiling.CompareAndSwap(cur, n) {
			return
		}
	}
}

// SubmitAudio queues one audio frame: the payload page followed by its
// zero-length timestamp annotation page.
func (q *WriteQueue) SubmitAudio(track, seq uint32, granule, timestamp uint64, payload []byte) error {
	return q.submit(writeTask{kind: taskAudio, track: track, seq: seq, granule: granule, timestamp: timestamp, payload: payload})
}

// SubmitTrackHeader queues the identification and tags packets of a track.
func (q *WriteQueue) SubmitTrackHeader(track uint32, codec CodecKind) error {
	return q.submit(writeTask{kind: taskTrackHeader, track: track, codec: codec})
}

// SubmitUserMetadata queues one track-to-identity JSON line.
func (q *WriteQueue) SubmitUserMetadata(track uint32, identity Identity) error {
	return q.submit(writeTask{kind: taskUserMetadata, track: track, identity: identity})
}

// SubmitLogLine queues one line of plain text for the recording log.
func (q *WriteQueue) SubmitLogLine(line string) error {
	return q.submit(writeTask{kind: taskLogLine, text: line})
}

// SubmitNote queues a note. The note track header is written before the
// first note.
func (q *WriteQueue) SubmitNote(granule uint64, text string) error {
	return q.submit(writeTask{kind: taskNote, granule: granule, text: text})
}

func (q *WriteQueue) submit(t writeTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting tasks, waits for every queued task to finish, and then
// closes the streams. It is safe to call more than once.
func (q *WriteQueue) Close() error {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()
	if !already {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	<-q.done
	return q.closeErr
}

func (q *WriteQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for i := range batch {
			q.execute(batch[i])
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			q.closeErr = q.streams.Close()
			return
		}
		<-q.wake
	}
}

func (q *WriteQueue) execute(t writeTask) {
	var err error
	switch t.kind {
	case taskAudio:
		err = q.writeAudio(t)
	case taskTrackHeader:
		err = q.writeTrackHeader(t)
	case taskUserMetadata:
		err = q.writeUserMetadata(t)
	case taskLogLine:
		_, err = io.WriteString(q.streams.Log, t.text+"\n")
	case taskNote:
		err = q.writeNote(t)
	}
	if err != nil {
		logging.WarnWithContext(q.logger, "recording write failed; task skipped", "write_failed",
			logging.Track(t.track),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on paths.recordings_dir"),
			logging.String(logging.FieldImpact, "one packet missing from the recording"),
		)
	}
}

// admit reserves n data-stream bytes, refusing once the ceiling is reached.
func (q *WriteQueue) admit(n int64) bool {
	if q.written.Load()+n > q.ceiling.Load() {
		q.dropped.Add(1)
		q.limitOnce.Do(func() {
			q.limitHit.Store(true)
			if q.onLimit != nil {
				q.onLimit()
			}
		})
		return false
	}
	return true
}

func (q *WriteQueue) writeAudio(t writeTask) error {
	need := int64(oggpage.Size(len(t.payload)) + oggpage.Size(0))
	if !q.admit(need) {
		return nil
	}
	n, err := q.data.Write(t.granule, t.track, t.seq, t.payload, 0)
	q.written.Add(int64(n))
	if err != nil {
		return fmt.Errorf("write audio page: %w", err)
	}
	n, err = q.data.Write(t.timestamp, t.track, t.seq+1, nil, 0)
	q.written.Add(int64(n))
	if err != nil {
		return fmt.Errorf("write timestamp page: %w", err)
	}
	return nil
}

func (q *WriteQueue) writeTrackHeader(t writeTask) error {
	if _, err := q.header1.Write(0, t.track, 0, IdentificationPacket(t.codec), oggpage.FlagBOS); err != nil {
		return fmt.Errorf("write identification header: %w", err)
	}
	if _, err := q.header2.Write(0, t.track, 1, TagsPacket(t.codec), 0); err != nil {
		return fmt.Errorf("write tags header: %w", err)
	}
	return nil
}

func (q *WriteQueue) writeUserMetadata(t writeTask) error {
	line, err := json.Marshal(map[string]Identity{strconv.FormatUint(uint64(t.track), 10): t.identity})
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}
	_, err = q.streams.Users.Write(append(line, '\n'))
	return err
}

const notePrefix = "NOTE"

func (q *WriteQueue) writeNote(t writeTask) error {
	if !q.noteHeaderWritten {
		if _, err := q.header1.Write(0, NoteTrack, 0, []byte("STREAMNOTE"), oggpage.FlagBOS); err != nil {
			return fmt.Errorf("write note header: %w", err)
		}
		q.noteHeaderWritten = true
	}
	for _, chunk := range splitNote(t.text, oggpage.MaxPayload-len(notePrefix)) {
		payload := append([]byte(notePrefix), chunk...)
		if !q.admit(int64(oggpage.Size(len(payload)))) {
			return nil
		}
		n, err := q.data.Write(t.granule, NoteTrack, q.noteSeq, payload, 0)
		q.written.Add(int64(n))
		if err != nil {
			return fmt.Errorf("write note: %w", err)
		}
		q.noteSeq++
	}
	return nil
}

func splitNote(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var out []string
	for len(text) > max {
		out = append(out, text[:max])
		text = text[max:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
