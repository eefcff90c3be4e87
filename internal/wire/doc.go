// Package wire encodes and decodes the binary messages exchanged with
// bridged audio peers.
//
// Every frame starts with a four byte little-endian opcode followed by fixed
// little-endian fields and, for some messages, trailing variable-length
// bytes. Decoding is strict: a short or unknown frame yields a ProtocolError
// carrying the close reason the connection should be terminated with.
package wire
