package codec

import (
	"errors"
	"testing"

	"voxtape/internal/capture"
)

func TestCRC8CheckValue(t *testing.T) {
	if got := crc8([]byte("123456789")); got != 0xF4 {
		t.Fatalf("crc8 = %#x, want 0xf4", got)
	}
}

func TestValidateOpusPacket(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		ok   bool
	}{
		{"empty", nil, false},
		{"single frame", []byte{0xFC, 0x11, 0x22, 0x33}, true},
		{"toc only", []byte{0xF8}, true},
		{"two equal frames", []byte{0x01, 1, 2, 3, 4}, true},
		{"two equal frames odd", []byte{0x01, 1, 2, 3}, false},
		{"two sized frames", []byte{0x02, 2, 0xAA, 0xBB, 0xCC}, true},
		{"first frame too long", []byte{0x02, 10, 0xAA}, false},
		{"code 3 cbr", []byte{0x03, 0x02, 1, 2, 3, 4}, true},
		{"code 3 cbr uneven", []byte{0x03, 0x02, 1, 2, 3}, false},
		{"code 3 zero frames", []byte{0x03, 0x00}, false},
		{"code 3 over 120ms", []byte{0x03, 13, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, false},
		{"code 3 vbr padded", []byte{0x03, 0xC2, 0x01, 0x02, 0xAA, 0xBB, 0xCC, 0x00}, true},
		{"code 3 padding overrun", []byte{0x03, 0x41, 0x09, 0xAA}, false},
		{"code 3 vbr lengths overrun", []byte{0x03, 0x82, 0x09, 0xAA}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOpusPacket(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrCorrupt) {
					t.Fatalf("error %v does not wrap ErrCorrupt", err)
				}
			}
		})
	}
}

func flacFrame(t *testing.T) []byte {
	t.Helper()
	// Fixed blocksize, 4608 samples (code 5), 48 kHz (code 10), mono, 24-bit.
	hdr := []byte{0xFF, 0xF8, 0x5A, 0x0C, 0x00}
	frame := append(hdr, crc8(hdr))
	return append(frame, make([]byte, 20)...)
}

func TestValidateFLACFrame(t *testing.T) {
	good := flacFrame(t)
	if err := ValidateFLACFrame(good); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}

	if err := ValidateFLACFrame([]byte{1, 2, 3}); err != nil {
		t.Fatalf("short payload should pass as silence: %v", err)
	}

	badSync := append([]byte(nil), good...)
	badSync[1] = 0x00
	if err := ValidateFLACFrame(badSync); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad sync = %v", err)
	}

	badCRC := append([]byte(nil), good...)
	badCRC[5] ^= 0xFF
	if err := ValidateFLACFrame(badCRC); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad crc = %v", err)
	}

	reservedRate := append([]byte(nil), good...)
	reservedRate[2] = 0x5F
	if err := ValidateFLACFrame(reservedRate); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("reserved rate = %v", err)
	}
}

func TestValidateFLACFrameExtendedHeader(t *testing.T) {
	// Block size from an 8-bit field (code 6), rate from a 16-bit field in Hz
	// (code 13), two-byte coded frame number.
	hdr := []byte{0xFF, 0xF8, 0x6D, 0x08, 0xC2, 0x80, 0xFF, 0xBB, 0x80}
	frame := append(hdr, crc8(hdr))
	frame = append(frame, make([]byte, 10)...)
	if err := ValidateFLACFrame(frame); err != nil {
		t.Fatalf("extended header rejected: %v", err)
	}
}

func TestNewCheckerRoutesByCodec(t *testing.T) {
	if err := NewChecker(capture.CodecFLAC48k).Check(flacFrame(t)); err != nil {
		t.Fatalf("flac checker: %v", err)
	}
	if err := NewChecker(capture.CodecMonoOpus).Check(nil); err == nil {
		t.Fatal("opus checker accepted an empty packet")
	}
	if err := NewChecker(capture.CodecNativeStereoOpus).Check([]byte{0x01, 1, 2, 3}); err == nil {
		t.Fatal("opus checker accepted a malformed packet")
	}

	continuous := NewChecker(capture.CodecMonoOpusContinuous)
	if err := continuous.Check([]byte{0x00}); err != nil {
		t.Fatalf("bare activity byte rejected: %v", err)
	}
	if err := continuous.Check([]byte{0x01, 0x01, 1, 2, 3}); err == nil {
		t.Fatal("continuous checker ignored codec payload")
	}

	flacContinuous := NewChecker(capture.CodecFLACContinuous)
	if err := flacContinuous.Check(append([]byte{0x01}, flacFrame(t)...)); err != nil {
		t.Fatalf("continuous flac: %v", err)
	}
}
