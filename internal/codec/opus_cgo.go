//go:build cgo && opus

package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"voxtape/internal/capture"
)

// 120 ms at 48 kHz, the longest packet Opus allows.
const maxOpusSamples = 5760

type opusChecker struct {
	dec      *opus.Decoder
	channels int
	pcm      []int16
}

func newOpusChecker(channels int) capture.Checker {
	dec, err := opus.NewDecoder(48000, channels)
	if err != nil {
		return checkFunc(ValidateOpusPacket)
	}
	return &opusChecker{dec: dec, channels: channels, pcm: make([]int16, maxOpusSamples*channels)}
}

func (c *opusChecker) Check(payload []byte) error {
	if err := ValidateOpusPacket(payload); err != nil {
		return err
	}
	if _, err := c.dec.Decode(payload, c.pcm); err != nil {
		return fmt.Errorf("%w: libopus: %v", ErrCorrupt, err)
	}
	return nil
}
