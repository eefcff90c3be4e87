// Package notifications delivers recording events to ntfy.
//
// The service publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Each event kind can be switched off
// individually, so the daemon calls the Service unconditionally.
package notifications
