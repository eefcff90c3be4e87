//go:build !(cgo && opus)

package codec

import "voxtape/internal/capture"

func newOpusChecker(int) capture.Checker {
	return checkFunc(ValidateOpusPacket)
}
