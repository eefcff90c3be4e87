package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RotatedBackupPattern returns the glob lumberjack uses for the backups of
// logPath: voxtaped.log rotates into voxtaped-<timestamp>.log.
func RotatedBackupPattern(logPath string) string {
	ext := filepath.Ext(logPath)
	stem := strings.TrimSuffix(filepath.Base(logPath), ext)
	return filepath.Join(filepath.Dir(logPath), stem+"-*"+ext)
}

// PruneRotatedLogs deletes rotated backups of logPath last modified more than
// retentionDays ago and returns how many were removed. The active file is
// never touched; retentionDays <= 0 keeps everything.
func PruneRotatedLogs(logger *slog.Logger, logPath string, retentionDays int) int {
	if retentionDays <= 0 || strings.TrimSpace(logPath) == "" {
		return 0
	}
	matches, err := filepath.Glob(RotatedBackupPattern(logPath))
	if err != nil {
		return 0
	}
	active := filepath.Clean(logPath)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, path := range matches {
		if filepath.Clean(path) == active {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "rotated log not pruned", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of paths.log_dir"),
				String(FieldImpact, "old daemon logs keep using disk space"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("pruned rotated daemon logs",
			String(FieldEventType, "log_pruned"),
			Int("removed", removed),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}
