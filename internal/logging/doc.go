// Package logging assembles structured slog loggers and formatting helpers used
// across voxtape.
//
// It owns the configurable console/JSON handlers, rotates the daemon log file,
// and exposes context-aware helpers so capture and bridge code can tag log
// lines with recording IDs and track numbers. The package also provides a
// no-op logger for tests and a line handler that mirrors records into a
// recording's own plain-text log stream.
package logging
