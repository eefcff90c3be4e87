package ipc

import "voxtape/internal/daemon"

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Voxtape"

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// ActiveRecording is the live view of one recording.
type ActiveRecording = daemon.ActiveRecording

// StatusResponse reports daemon state.
type StatusResponse struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	DatabasePath string            `json:"database_path"`
	LockPath     string            `json:"lock_path"`
	APIAddress   string            `json:"api_address"`
	FreeBytes    uint64            `json:"free_bytes"`
	Active       []ActiveRecording `json:"active"`
	Stats        map[string]int    `json:"stats"`
}

// StartRecordingRequest begins a new recording.
type StartRecordingRequest struct {
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	RequesterID string `json:"requester_id"`
	Automatic   bool   `json:"automatic"`
}

// StartRecordingResponse carries the new recording's identifiers.
type StartRecordingResponse struct {
	Recording daemon.StartResult `json:"recording"`
}

// StopRecordingRequest ends a live recording.
type StopRecordingRequest struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
}

// StopRecordingResponse reports the stop outcome.
type StopRecordingResponse struct {
	Stopped bool `json:"stopped"`
}

// NoteRequest appends a note to a live recording.
type NoteRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NoteResponse acknowledges a note.
type NoteResponse struct {
	Accepted bool `json:"accepted"`
}

// Recording is a persisted recording. Keys are only filled by ShowRecording.
type Recording struct {
	daemon.RecordingView
	AccessKey     string `json:"access_key,omitempty"`
	DeleteKey     string `json:"delete_key,omitempty"`
	IngestKey     string `json:"ingest_key,omitempty"`
	RecordingsDir string `json:"recordings_dir,omitempty"`
}

// ListRecordingsRequest filters recordings by status names.
type ListRecordingsRequest struct {
	Statuses []string `json:"statuses"`
}

// ListRecordingsResponse returns recordings newest first.
type ListRecordingsResponse struct {
	Recordings []Recording `json:"recordings"`
}

// ShowRecordingRequest fetches one recording.
type ShowRecordingRequest struct {
	ID string `json:"id"`
}

// ShowRecordingResponse returns one recording including its keys.
type ShowRecordingResponse struct {
	Recording Recording `json:"recording"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalRecordings  int      `json:"total_recordings"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
