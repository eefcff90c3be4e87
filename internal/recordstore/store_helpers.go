package recordstore

import (
	"database/sql"
	"errors"
	"time"
)

const recordingColumns = "id, guild_id, channel_id, requester_id, access_key, delete_key, ingest_key, status, reason, error_message, automatic, used_bridge, errored, started_at, ended_at, duration_ms, bytes_written, track_count, note_count, expires_at, recordings_dir"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		rec          Recording
		guildID      sql.NullString
		channelID    sql.NullString
		requesterID  sql.NullString
		statusStr    string
		reason       sql.NullString
		errorMessage sql.NullString
		automatic    int64
		usedBridge   int64
		errored      int64
		startedRaw   string
		endedRaw     sql.NullString
		durationMS   int64
		expiresRaw   sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&guildID,
		&channelID,
		&requesterID,
		&rec.AccessKey,
		&rec.DeleteKey,
		&rec.IngestKey,
		&statusStr,
		&reason,
		&errorMessage,
		&automatic,
		&usedBridge,
		&errored,
		&startedRaw,
		&endedRaw,
		&durationMS,
		&rec.BytesWritten,
		&rec.TrackCount,
		&rec.NoteCount,
		&expiresRaw,
		&rec.RecordingsDir,
	); err != nil {
		return nil, err
	}

	rec.GuildID = guildID.String
	rec.ChannelID = channelID.String
	rec.RequesterID = requesterID.String
	rec.Status = Status(statusStr)
	rec.Reason = reason.String
	rec.ErrorMessage = errorMessage.String
	rec.Automatic = automatic != 0
	rec.UsedBridge = usedBridge != 0
	rec.Errored = errored != 0
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if started, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = started
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			rec.EndedAt = &ended
		}
	}
	if expiresRaw.Valid {
		if expires, err := parseTimeString(expiresRaw.String); err == nil {
			rec.ExpiresAt = &expires
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
