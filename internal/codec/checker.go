package codec

import (
	"errors"

	"voxtape/internal/capture"
)

// ErrCorrupt is wrapped by every checker failure.
var ErrCorrupt = errors.New("corrupt payload")

type checkFunc func([]byte) error

func (f checkFunc) Check(payload []byte) error { return f(payload) }

// NewChecker returns a checker for one track of the given codec. Checkers may
// hold decoder state and must not be shared between tracks.
func NewChecker(kind capture.CodecKind) capture.Checker {
	var inner capture.Checker
	if kind.IsFLAC() {
		inner = checkFunc(ValidateFLACFrame)
	} else {
		inner = newOpusChecker(int(kind.Channels()))
	}
	if !kind.Continuous() {
		return inner
	}
	// Continuous payloads carry a voice-activity byte ahead of the codec data.
	return checkFunc(func(payload []byte) error {
		if len(payload) <= 1 {
			return nil
		}
		return inner.Check(payload[1:])
	})
}
