// Package capture records one live voice session into five sibling output
// streams.
//
// A Session owns the lifecycle: it connects a Transport, assigns each speaker
// a track, keeps a short reorder buffer per track, and hands finished frames
// to a WriteQueue. The queue is the only writer of the streams and executes
// tasks strictly in submission order on its own goroutine, enforcing the
// recording's byte ceiling. Every way a recording can end (request, idle,
// time or size limit, lost connection) funnels through Session.Stop, which
// flushes pending audio and drains the queue before the streams are closed.
package capture
