package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voxtape/internal/config"
)

// ErrDuplicate is returned by Create when the recording id is already used.
var ErrDuplicate = errors.New("recording already exists")

// Store manages recording persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the recordings database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a recording in the recording state.
func (s *Store) Create(ctx context.Context, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("recording id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusRecording
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recordings (
            id, guild_id, channel_id, requester_id, access_key, delete_key, ingest_key,
            status, automatic, started_at, recordings_dir
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		nullableString(rec.GuildID),
		nullableString(rec.ChannelID),
		nullableString(rec.RequesterID),
		rec.AccessKey,
		rec.DeleteKey,
		rec.IngestKey,
		rec.Status,
		boolToInt(rec.Automatic),
		formatTime(rec.StartedAt),
		rec.RecordingsDir,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
		}
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// Finish records the final state of a recording. Only rows still in the
// recording state are updated, so a late or repeated call is a no-op.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) (bool, error) {
	if out.Status == "" {
		out.Status = StatusEnded
	}
	if out.EndedAt.IsZero() {
		out.EndedAt = s.now()
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET status = ?, reason = ?, error_message = ?, used_bridge = ?, errored = ?,
             ended_at = ?, duration_ms = ?, bytes_written = ?, track_count = ?,
             note_count = ?, expires_at = ?
         WHERE id = ? AND status = ?`,
		out.Status,
		nullableString(out.Reason),
		nullableString(out.ErrorMessage),
		boolToInt(out.UsedBridge),
		boolToInt(out.Errored),
		formatTime(out.EndedAt),
		out.Duration.Milliseconds(),
		out.BytesWritten,
		out.TrackCount,
		out.NoteCount,
		nullableTime(out.ExpiresAt),
		id,
		StatusRecording,
	)
	if err != nil {
		return false, fmt.Errorf("finish recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Get fetches a recording by id. A missing recording returns nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns recordings filtered by status (or all recordings when no
// status is provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY started_at DESC, id`
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Recording, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
