// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server embeds the daemon; recording keys only travel over this socket,
// never over the HTTP API.
package ipc
