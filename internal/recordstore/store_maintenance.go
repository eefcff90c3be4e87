package recordstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ResetInterrupted fails every recording left in the recording state, which
// only happens when the daemon stopped without running the end hook.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings SET status = ?, errored = 1, reason = ?, ended_at = COALESCE(ended_at, ?)
         WHERE status = ?`,
		StatusFailed,
		InterruptedReason,
		formatTime(s.now()),
		StatusRecording,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted recordings: %w", err)
	}
	return res.RowsAffected()
}

// Expired returns finished recordings whose retention window closed at or
// before now.
func (s *Store) Expired(ctx context.Context, now time.Time) ([]*Recording, error) {
	candidates, err := s.query(ctx,
		`SELECT `+recordingColumns+` FROM recordings
         WHERE status IN (?, ?) AND expires_at IS NOT NULL ORDER BY started_at`,
		StatusEnded, StatusFailed,
	)
	if err != nil {
		return nil, err
	}
	var out []*Recording
	for _, rec := range candidates {
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MarkExpired moves a finished recording to the expired state.
func (s *Store) MarkExpired(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET status = ? WHERE id = ? AND status IN (?, ?)`,
		StatusExpired, id, StatusEnded, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recording %s is not finished", id)
	}
	return nil
}

// Stats returns a count of recordings grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM recordings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("recording stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates recording counts for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusRecording:
			health.Recording += count
		case StatusEnded:
			health.Ended += count
		case StatusFailed:
			health.Failed += count
		case StatusExpired:
			health.Expired += count
		}
	}
	return health, nil
}

var expectedColumns = strings.Split(strings.ReplaceAll(recordingColumns, " ", ""), ",")

// CheckHealth returns diagnostic information about the database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("recordings database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat recordings database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("recordings database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping recordings database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM pragma_table_info('recordings')")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	health.TableExists = len(present) > 0
	for _, col := range expectedColumns {
		if _, ok := present[col]; !ok {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	if health.TableExists {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM recordings").Scan(&health.TotalRecordings); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count recordings: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
