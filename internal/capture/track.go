package capture

import (
	"sort"
	"time"
)

// NoteTrack is the stream id reserved for free-text notes. Speaker tracks
// never reach it.
const NoteTrack uint32 = 65536

// Identity describes who owns a track.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	Unknown bool   `json:"unknown,omitempty"`
}

// UnknownIdentity is recorded when identity lookup fails or is unavailable.
func UnknownIdentity(speakerID string) Identity {
	return Identity{ID: speakerID, Name: "unknown", Unknown: true}
}

// Checker spot-checks codec payloads for corruption. Implementations may be
// stateful and are only used from a single track.
type Checker interface {
	Check(payload []byte) error
}

// PendingPacket is one audio frame waiting in a track's reorder buffer.
type PendingPacket struct {
	Payload   []byte
	Timestamp uint64
	// Time is the local granule: 48000 units per second since recording start.
	Time uint64
}

// Track is one logical bitstream in the recording.
type Track struct {
	Number    uint32
	Key       string
	Codec     CodecKind
	Bridged   bool
	Identity  Identity
	CreatedAt time.Time

	seq          uint32
	pending      []PendingPacket
	packets      int
	checker      Checker
	corruptNoted bool
}

// TrackInfo is an immutable view of a track for observers and snapshots.
type TrackInfo struct {
	Number   uint32    `json:"number"`
	Key      string    `json:"key"`
	Codec    CodecKind `json:"codec"`
	Bridged  bool      `json:"bridged"`
	Identity Identity  `json:"identity"`
	Packets  int       `json:"packets"`
}

func newTrack(number uint32, key string, codec CodecKind, bridged bool, now time.Time) *Track {
	t := &Track{
		Number:    number,
		Key:       key,
		Codec:     codec,
		Bridged:   bridged,
		Identity:  UnknownIdentity(key),
		CreatedAt: now,
	}
	if !bridged {
		// Sequence 0 and 1 belong to the header packets.
		t.seq = 2
	}
	return t
}

func (t *Track) info() TrackInfo {
	return TrackInfo{
		Number:   t.Number,
		Key:      t.Key,
		Codec:    t.Codec,
		Bridged:  t.Bridged,
		Identity: t.Identity,
		Packets:  t.packets,
	}
}

// push appends a packet, re-sorting when it arrived behind the current tail.
func (t *Track) push(p PendingPacket) {
	n := len(t.pending)
	t.pending = append(t.pending, p)
	if n > 0 && p.Timestamp < t.pending[n-1].Timestamp {
		sort.SliceStable(t.pending, func(i, j int) bool {
			return t.pending[i].Timestamp < t.pending[j].Timestamp
		})
	}
}

// pop removes the oldest pending packet and assigns its sequence pair.
func (t *Track) pop() (PendingPacket, uint32, bool) {
	if len(t.pending) == 0 {
		return PendingPacket{}, 0, false
	}
	p := t.pending[0]
	t.pending[0] = PendingPacket{}
	t.pending = t.pending[1:]
	seq := t.seq
	t.seq += 2
	return p, seq, true
}
