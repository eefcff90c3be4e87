// Command voxtape is the operator CLI for the voxtape recorder. It runs the
// daemon in the foreground or background and talks to a running daemon over
// its Unix socket to start, stop, annotate, list, and verify recordings.
package main
