package capture

import (
	"encoding/binary"
	"fmt"
)

// CodecKind identifies the payload format carried by a track.
type CodecKind int

const (
	CodecNativeStereoOpus CodecKind = iota
	CodecMonoOpus
	CodecMonoOpusContinuous
	CodecFLAC44k
	CodecFLAC48k
	CodecFLACContinuous
)

func (k CodecKind) String() string {
	switch k {
	case CodecNativeStereoOpus:
		return "opus-stereo"
	case CodecMonoOpus:
		return "opus-mono"
	case CodecMonoOpusContinuous:
		return "opus-mono-continuous"
	case CodecFLAC44k:
		return "flac-44k"
	case CodecFLAC48k:
		return "flac-48k"
	case CodecFLACContinuous:
		return "flac-continuous"
	default:
		return fmt.Sprintf("codec(%d)", int(k))
	}
}

// IsFLAC reports whether the track carries FLAC frames.
func (k CodecKind) IsFLAC() bool {
	return k == CodecFLAC44k || k == CodecFLAC48k || k == CodecFLACContinuous
}

// Continuous reports whether payloads carry a leading voice-activity byte.
func (k CodecKind) Continuous() bool {
	return k == CodecMonoOpusContinuous || k == CodecFLACContinuous
}

// SampleRate returns the codec's native sample rate.
func (k CodecKind) SampleRate() uint32 {
	if k == CodecFLAC44k {
		return 44100
	}
	return 48000
}

// Channels returns the channel count declared in the track header.
func (k CodecKind) Channels() uint8 {
	if k == CodecNativeStereoOpus {
		return 2
	}
	return 1
}

// Silent classifies a payload as silence for speaking-state purposes.
func (k CodecKind) Silent(payload []byte) bool {
	switch {
	case k.Continuous():
		return len(payload) == 0 || payload[0] == 0
	case k.IsFLAC():
		return len(payload) < 16
	default:
		return len(payload) < 8
	}
}

const vendorString = "voxtape"

// IdentificationPacket returns the first header packet for a track, written
// with the BOS flag to the first header stream.
func IdentificationPacket(k CodecKind) []byte {
	if k.IsFLAC() {
		return flacIdentification(k)
	}
	p := make([]byte, 19)
	copy(p, "OpusHead")
	p[8] = 1
	p[9] = k.Channels()
	binary.LittleEndian.PutUint16(p[10:], 0)
	binary.LittleEndian.PutUint32(p[12:], 48000)
	binary.LittleEndian.PutUint16(p[16:], 0)
	p[18] = 0
	return p
}

// TagsPacket returns the comment header packet written to the second header
// stream.
func TagsPacket(k CodecKind) []byte {
	comment := make([]byte, 0, 8+len(vendorString))
	comment = binary.LittleEndian.AppendUint32(comment, uint32(len(vendorString)))
	comment = append(comment, vendorString...)
	comment = binary.LittleEndian.AppendUint32(comment, 0)

	if !k.IsFLAC() {
		return append([]byte("OpusTags"), comment...)
	}
	// VORBIS_COMMENT metadata block, flagged as the last block.
	p := []byte{0x84, byte(len(comment) >> 16), byte(len(comment) >> 8), byte(len(comment))}
	return append(p, comment...)
}

func flacIdentification(k CodecKind) []byte {
	rate := k.SampleRate()
	block := uint16(rate / 50)
	const bitsPerSample = 24

	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:], block)
	binary.BigEndian.PutUint16(info[2:], block)
	// min/max frame size left unknown (zero).
	// 20 bits sample rate, 3 bits channels-1, 5 bits bps-1, 36 bits total samples.
	packed := uint64(rate)<<44 | uint64(k.Channels()-1)<<41 | uint64(bitsPerSample-1)<<36
	binary.BigEndian.PutUint64(info[10:], packed)
	// MD5 signature left zero.

	p := make([]byte, 0, 13+4+len(info))
	p = append(p, 0x7F)
	p = append(p, "FLAC"...)
	p = append(p, 1, 0)
	p = binary.BigEndian.AppendUint16(p, 1)
	p = append(p, "fLaC"...)
	p = append(p, 0x00, 0, 0, byte(len(info)))
	return append(p, info...)
}

// MarshalText encodes the kind by name.
func (k CodecKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (k *CodecKind) UnmarshalText(b []byte) error {
	for c := CodecNativeStereoOpus; c <= CodecFLACContinuous; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown codec %q", string(b))
}
