// Package daemon coordinates the long-running voxtape process.
//
// It wires configuration, the recording store, notifications, and the bridge
// registry into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon owns the registry of live capture sessions,
// runs the free-space preflight before a recording starts, persists each
// session summary through the end hook, and expires recordings whose
// retention window has closed.
//
// Keep orchestration logic here: capture semantics live in internal/capture
// and peer handling in internal/bridge, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
