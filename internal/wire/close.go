package wire

import (
	"errors"
	"fmt"

	"voxtape/internal/services"
)

// CloseReason is carried by a close message in either direction.
type CloseReason uint32

const (
	CloseNormal                CloseReason = 0x00
	CloseShardClosed           CloseReason = 0x01
	CloseRecordingEnded        CloseReason = 0x02
	CloseInvalidMessage        CloseReason = 0x10
	CloseInvalidID             CloseReason = 0x11
	CloseInvalidFlags          CloseReason = 0x12
	CloseInvalidToken          CloseReason = 0x13
	CloseInvalidUsername       CloseReason = 0x14
	CloseInvalidConnectionType CloseReason = 0x15
	CloseNotFound              CloseReason = 0x20
	CloseAlreadyConnected      CloseReason = 0x21
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseShardClosed:
		return "shard closed"
	case CloseRecordingEnded:
		return "recording ended"
	case CloseInvalidMessage:
		return "invalid message"
	case CloseInvalidID:
		return "invalid id"
	case CloseInvalidFlags:
		return "invalid flags"
	case CloseInvalidToken:
		return "invalid token"
	case CloseInvalidUsername:
		return "invalid username"
	case CloseInvalidConnectionType:
		return "invalid connection type"
	case CloseNotFound:
		return "not found"
	case CloseAlreadyConnected:
		return "already connected"
	default:
		return fmt.Sprintf("close reason %#x", uint32(r))
	}
}

// ProtocolError reports a frame or request the server refuses. The offending
// connection is closed with Reason; other connections are unaffected.
type ProtocolError struct {
	Reason CloseReason
	Op     Opcode
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "wire: " + e.Reason.String()
	if e.Op != 0 {
		msg += " (" + e.Op.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrProtocol}
	}
	return []error{services.ErrProtocol, e.Err}
}

// Refuse builds a ProtocolError for a request rejected after decoding.
func Refuse(reason CloseReason, op Opcode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: reason, Op: op, Err: fmt.Errorf(format, args...)}
}

// ReasonOf returns the close reason for err. Errors that are not protocol
// errors map to CloseInvalidMessage.
func ReasonOf(err error) CloseReason {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return CloseInvalidMessage
}
