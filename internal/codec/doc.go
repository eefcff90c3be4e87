// Package codec spot-checks captured audio payloads for corruption.
//
// Payloads are never decoded for output; a checker only answers whether a
// packet is structurally plausible for its track's codec. Opus packets are
// validated against the TOC framing rules and, in builds with the opus tag
// and cgo, additionally run through libopus. FLAC frames are validated by
// their sync code and header CRC-8.
package codec
