// Package recordstore persists recording metadata in SQLite.
//
// Every recording gets a row when it starts and is finished from the
// session's end hook with the final status, counters and expiry. Rows left in
// the recording state by a crash are failed on the next daemon start, and the
// daemon's janitor uses Expired and MarkExpired to retire recordings past
// their retention window.
package recordstore
