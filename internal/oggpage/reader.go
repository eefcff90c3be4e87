package oggpage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorruptPage is returned by Reader when a page fails structural or
// checksum validation.
var ErrCorruptPage = errors.New("oggpage: corrupt page")

// Reader scans pages sequentially from a stream.
type Reader struct {
	r      *bufio.Reader
	offset int64
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Offset returns the byte offset of the next page.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next page, io.EOF at a clean end of stream, or an error
// wrapping ErrCorruptPage.
func (r *Reader) Next() (Page, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Page{}, io.EOF
		}
		return Page{}, fmt.Errorf("%w: short header at %d: %v", ErrCorruptPage, r.offset, err)
	}
	if !bytes.Equal(hdr[0:4], capturePattern[:]) {
		return Page{}, fmt.Errorf("%w: bad capture pattern at %d", ErrCorruptPage, r.offset)
	}
	if hdr[4] != 0 {
		return Page{}, fmt.Errorf("%w: unsupported version %d at %d", ErrCorruptPage, hdr[4], r.offset)
	}
	segs := int(hdr[26])
	lacing := make([]byte, segs)
	if _, err := io.ReadFull(r.r, lacing); err != nil {
		return Page{}, fmt.Errorf("%w: short lacing table at %d: %v", ErrCorruptPage, r.offset, err)
	}
	size := 0
	for _, l := range lacing {
		size += int(l)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Page{}, fmt.Errorf("%w: short payload at %d: %v", ErrCorruptPage, r.offset, err)
	}

	raw := make([]byte, 0, headerSize+segs+size)
	raw = append(raw, hdr[:]...)
	raw = append(raw, lacing...)
	raw = append(raw, payload...)
	if !Verify(raw) {
		return Page{}, fmt.Errorf("%w: checksum mismatch at %d", ErrCorruptPage, r.offset)
	}
	r.offset += int64(len(raw))

	return Page{
		Granule:  binary.LittleEndian.Uint64(hdr[6:14]),
		StreamID: binary.LittleEndian.Uint32(hdr[14:18]),
		Sequence: binary.LittleEndian.Uint32(hdr[18:22]),
		Flags:    hdr[5],
		Payload:  payload,
	}, nil
}
