package codec

import "fmt"

var crc8Table = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		for j := 0; j < 8; j++ {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc8(p []byte) byte {
	var c byte
	for _, b := range p {
		c = crc8Table[c^b]
	}
	return c
}

// ValidateFLACFrame checks the sync code and header CRC-8 of a FLAC frame.
// Payloads too short to hold a frame header are treated as silence and pass.
func ValidateFLACFrame(p []byte) error {
	if len(p) < 16 {
		return nil
	}
	if p[0] != 0xFF || p[1]&0xFE != 0xF8 {
		return fmt.Errorf("%w: missing FLAC sync code", ErrCorrupt)
	}
	blockBits := p[2] >> 4
	rateBits := p[2] & 0x0F
	if blockBits == 0 {
		return fmt.Errorf("%w: reserved block size", ErrCorrupt)
	}
	if rateBits == 0x0F {
		return fmt.Errorf("%w: invalid sample rate code", ErrCorrupt)
	}
	if p[3]>>4 > 10 {
		return fmt.Errorf("%w: reserved channel assignment", ErrCorrupt)
	}
	if p[3]&0x01 != 0 {
		return fmt.Errorf("%w: reserved header bit set", ErrCorrupt)
	}

	off := 4
	// Frame or sample number, UTF-8 style coded.
	lead := p[off]
	extra := 0
	switch {
	case lead&0x80 == 0:
	case lead&0xE0 == 0xC0:
		extra = 1
	case lead&0xF0 == 0xE0:
		extra = 2
	case lead&0xF8 == 0xF0:
		extra = 3
	case lead&0xFC == 0xF8:
		extra = 4
	case lead&0xFE == 0xFC:
		extra = 5
	case lead == 0xFE:
		extra = 6
	default:
		return fmt.Errorf("%w: bad coded frame number", ErrCorrupt)
	}
	off += 1 + extra
	switch blockBits {
	case 6:
		off++
	case 7:
		off += 2
	}
	switch rateBits {
	case 12:
		off++
	case 13, 14:
		off += 2
	}
	if off >= len(p) {
		return fmt.Errorf("%w: truncated frame header", ErrCorrupt)
	}
	if got := crc8(p[:off]); got != p[off] {
		return fmt.Errorf("%w: header crc %#02x, want %#02x", ErrCorrupt, p[off], got)
	}
	return nil
}
