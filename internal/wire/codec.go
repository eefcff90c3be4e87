package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const headerSize = 4

// Marshal encodes m with its opcode prefix.
func Marshal(m Message) []byte {
	dst := make([]byte, headerSize, 64)
	binary.LittleEndian.PutUint32(dst, uint32(m.Op()))
	return m.AppendPayload(dst)
}

// Unmarshal decodes one frame. Malformed frames return a *ProtocolError.
func Unmarshal(frame []byte) (Message, error) {
	if len(frame) < headerSize {
		return nil, &ProtocolError{Reason: CloseInvalidMessage, Err: io.ErrUnexpectedEOF}
	}
	op := Opcode(binary.LittleEndian.Uint32(frame))
	m, err := decodePayload(op, frame[headerSize:])
	if err != nil {
		return nil, &ProtocolError{Reason: CloseInvalidMessage, Op: op, Err: err}
	}
	return m, nil
}

func decodePayload(op Opcode, b []byte) (Message, error) {
	switch op {
	case OpLogin:
		if len(b) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		return Login{Flags: Flags(u32(b, 0)), Nick: string(b[4:])}, nil
	case OpInfo:
		if len(b) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		return Info{Key: u32(b, 0), Value: u32(b, 4)}, nil
	case OpWelcome:
		if len(b) < 12 {
			return nil, io.ErrUnexpectedEOF
		}
		return Welcome{Track: u32(b, 0), StartTime: f64(b, 4)}, nil
	case OpPing:
		if len(b) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		return Ping{ClientTime: u32(b, 0)}, nil
	case OpPong:
		if len(b) < 12 {
			return nil, io.ErrUnexpectedEOF
		}
		return Pong{ClientTime: u32(b, 0), ServerTime: f64(b, 4)}, nil
	case OpData:
		if len(b) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		payload := append([]byte(nil), b[8:]...)
		return Data{Granule: binary.LittleEndian.Uint64(b) & (MaxGranule - 1), Payload: payload}, nil
	case OpUser:
		if len(b) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		return User{Track: u32(b, 0), Connected: u32(b, 4) != 0, Nick: string(b[8:])}, nil
	case OpUserExtra:
		if len(b) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		return UserExtra{Track: u32(b, 0), Type: u32(b, 4), Data: string(b[8:])}, nil
	case OpSpeech:
		if len(b) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		return Speech{Track: u32(b, 0), Speaking: u32(b, 4) != 0}, nil
	case OpClose:
		if len(b) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		return Close{Reason: CloseReason(u32(b, 0))}, nil
	default:
		return nil, fmt.Errorf("unknown opcode %#x", uint32(op))
	}
}

func u32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func f64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

// MaxNickRunes bounds a login nickname.
const MaxNickRunes = 32

// ValidateNick trims a login nickname and rejects empty, oversized, or
// non-printable names.
func ValidateNick(nick string) (string, error) {
	if !utf8.ValidString(nick) {
		return "", Refuse(CloseInvalidUsername, OpLogin, "nickname is not valid UTF-8")
	}
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return "", Refuse(CloseInvalidUsername, OpLogin, "nickname is empty")
	}
	if utf8.RuneCountInString(nick) > MaxNickRunes {
		return "", Refuse(CloseInvalidUsername, OpLogin, "nickname longer than %d characters", MaxNickRunes)
	}
	for _, r := range nick {
		if !unicode.IsPrint(r) {
			return "", Refuse(CloseInvalidUsername, OpLogin, "nickname contains %U", r)
		}
	}
	return nick, nil
}
