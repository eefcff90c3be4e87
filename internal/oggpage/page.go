package oggpage

import (
	"encoding/binary"
	"errors"
	"io"
)

// Header flag bits stored in byte 5 of every page.
const (
	FlagContinued byte = 0x01
	FlagBOS       byte = 0x02
	FlagEOS       byte = 0x04
)

const (
	headerSize  = 27
	maxSegments = 255
	// MaxPayload is the largest payload a single page can carry.
	MaxPayload = maxSegments*255 - 1

	// MaxGranule is one past the largest granule position that fits the
	// six bytes written into the header.
	MaxGranule = uint64(1) << 48

	checksumOffset = 22
)

var capturePattern = [4]byte{'O', 'g', 'g', 'S'}

// ErrPayloadTooLarge reports a payload that would need more than 255 lacing
// values. Callers split such payloads into successive packets.
var ErrPayloadTooLarge = errors.New("oggpage: payload exceeds single page capacity")

// Page describes one container page.
type Page struct {
	Granule  uint64
	StreamID uint32
	Sequence uint32
	Flags    byte
	Payload  []byte
}

// Size returns the encoded length of a page carrying n payload bytes.
func Size(n int) int {
	return headerSize + segmentCount(n) + n
}

func segmentCount(n int) int {
	return n/255 + 1
}

// AppendPage encodes p onto dst and returns the extended slice.
//
// Only the low six bytes of the granule position are written; bytes 12 and 13
// of the header are always zero. Readers in the field depend on that layout.
func AppendPage(dst []byte, p Page) ([]byte, error) {
	n := len(p.Payload)
	if n > MaxPayload {
		return dst, ErrPayloadTooLarge
	}
	segs := segmentCount(n)

	start := len(dst)
	dst = append(dst, make([]byte, headerSize+segs)...)
	hdr := dst[start:]

	copy(hdr[0:4], capturePattern[:])
	hdr[4] = 0
	hdr[5] = p.Flags
	g := p.Granule
	for i := 0; i < 6; i++ {
		hdr[6+i] = byte(g >> (8 * i))
	}
	binary.LittleEndian.PutUint32(hdr[14:18], p.StreamID)
	binary.LittleEndian.PutUint32(hdr[18:22], p.Sequence)
	hdr[26] = byte(segs)

	lacing := hdr[headerSize : headerSize+segs]
	for i := 0; i < segs-1; i++ {
		lacing[i] = 255
	}
	lacing[segs-1] = byte(n % 255)

	dst = append(dst, p.Payload...)

	crc := Checksum(dst[start:])
	binary.LittleEndian.PutUint32(dst[start+checksumOffset:], crc)
	return dst, nil
}

// Encode returns a freshly allocated page.
func Encode(p Page) ([]byte, error) {
	return AppendPage(make([]byte, 0, Size(len(p.Payload))), p)
}

// Encoder writes pages to an underlying stream.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write emits exactly one page and reports the number of bytes written.
func (e *Encoder) Write(granule uint64, streamID, seq uint32, payload []byte, flags byte) (int, error) {
	buf, err := AppendPage(e.buf[:0], Page{
		Granule:  granule,
		StreamID: streamID,
		Sequence: seq,
		Flags:    flags,
		Payload:  payload,
	})
	if err != nil {
		return 0, err
	}
	e.buf = buf
	return e.w.Write(buf)
}
