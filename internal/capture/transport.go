package capture

import (
	"context"
	"strings"
	"time"
)

// Handler receives transport events for one recording.
type Handler interface {
	// OnData delivers one packet from a speaker. timestamp is the
	// transport's own clock for the packet.
	OnData(payload []byte, speakerID string, timestamp uint32)
	// OnDisconnect reports a lost connection. expected is true when the
	// disconnect followed a Leave call.
	OnDisconnect(expected bool, err error)
}

// Transport is the voice connection a recording captures from.
type Transport interface {
	Connect(ctx context.Context, h Handler) error
	Leave(ctx context.Context) error
}

// IdentityResolver looks up display details for a speaker. It is called off
// the intake path and may be slow.
type IdentityResolver interface {
	Resolve(ctx context.Context, speakerID string) (Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context, speakerID string) (Identity, error)

func (f IdentityResolverFunc) Resolve(ctx context.Context, speakerID string) (Identity, error) {
	return f(ctx, speakerID)
}

// Policy is the entitlement set resolved for a recording before it starts.
type Policy struct {
	MaxRecordHours            float64
	MaxDownloadRetentionHours int
	EnabledFeatures           []string
}

// HasFeature reports whether the policy enables name.
func (p Policy) HasFeature(name string) bool {
	for _, f := range p.EnabledFeatures {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// MaxDuration converts MaxRecordHours to a duration. Zero disables the limit.
func (p Policy) MaxDuration() time.Duration {
	if p.MaxRecordHours <= 0 {
		return 0
	}
	return time.Duration(p.MaxRecordHours * float64(time.Hour))
}

// Summary is handed to the end hook exactly once per recording.
type Summary struct {
	RecordingID  string
	RequesterID  string
	GuildID      string
	ChannelID    string
	StartTime    time.Time
	Duration     time.Duration
	Automatic    bool
	UsedBridge   bool
	Errored      bool
	Reason       string
	ActorID      string
	Err          error
	BytesWritten int64
	Tracks       int
	Notes        int
}

// Observer is notified of track presence and packet arrival. Calls happen on
// the intake path and must not block.
type Observer interface {
	TrackAdded(info TrackInfo)
	TrackUpdated(info TrackInfo)
	TrackPacket(track uint32, codec CodecKind, payload []byte)
	RecordingEnded(reason string)
}
