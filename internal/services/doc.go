// Package services defines shared error markers and context helpers used by
// the capture, bridge, and daemon layers.
//
// Key responsibilities:
//   - Context helpers that stamp recording IDs, track numbers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent recording statuses (ended vs failed).
//
// Use these helpers when wiring new components so error classification and
// log enrichment stay uniform across the daemon.
package services
