package recordstore

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a recording row.
type Status string

const (
	StatusRecording Status = "recording"
	StatusEnded     Status = "ended"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// InterruptedReason is stored on recordings failed at startup because the
// daemon stopped without finishing them.
const InterruptedReason = "daemon stopped while recording"

var allStatuses = []Status{StatusRecording, StatusEnded, StatusFailed, StatusExpired}

// ParseStatus converts a user-supplied status name.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range allStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// AllStatuses returns every known status.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Recording is one persisted recording.
type Recording struct {
	ID            string
	GuildID       string
	ChannelID     string
	RequesterID   string
	AccessKey     string
	DeleteKey     string
	IngestKey     string
	Status        Status
	Reason        string
	ErrorMessage  string
	Automatic     bool
	UsedBridge    bool
	Errored       bool
	StartedAt     time.Time
	EndedAt       *time.Time
	Duration      time.Duration
	BytesWritten  int64
	TrackCount    int
	NoteCount     int
	ExpiresAt     *time.Time
	RecordingsDir string
}

// IsActive reports whether the recording is still capturing.
func (r *Recording) IsActive() bool {
	return r != nil && r.Status == StatusRecording
}

// Outcome is the final state written by Finish.
type Outcome struct {
	Status       Status
	Reason       string
	ErrorMessage string
	UsedBridge   bool
	Errored      bool
	EndedAt      time.Time
	Duration     time.Duration
	BytesWritten int64
	TrackCount   int
	NoteCount    int
	ExpiresAt    *time.Time
}

// HealthSummary describes aggregated recording counts.
type HealthSummary struct {
	Total     int
	Recording int
	Ended     int
	Failed    int
	Expired   int
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecordings  int
	Error            string
}
