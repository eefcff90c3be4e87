package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Opcode is the four byte little-endian message type prefix.
type Opcode uint32

const (
	OpClose     Opcode = 0x02
	OpLogin     Opcode = 0x10
	OpInfo      Opcode = 0x11
	OpWelcome   Opcode = 0x12
	OpPing      Opcode = 0x20
	OpPong      Opcode = 0x21
	OpData      Opcode = 0x30
	OpUser      Opcode = 0x40
	OpUserExtra Opcode = 0x41
	OpSpeech    Opcode = 0x42
)

func (o Opcode) String() string {
	switch o {
	case OpClose:
		return "close"
	case OpLogin:
		return "login"
	case OpInfo:
		return "info"
	case OpWelcome:
		return "welcome"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	case OpData:
		return "data"
	case OpUser:
		return "user"
	case OpUserExtra:
		return "userExtra"
	case OpSpeech:
		return "speech"
	default:
		return fmt.Sprintf("op(%#x)", uint32(o))
	}
}

// Info keys.
const (
	InfoSampleRate uint32 = 0x0
)

// UserExtra types.
const (
	UserExtraAvatar uint32 = 0x0
)

// Message is implemented by every frame type.
type Message interface {
	Op() Opcode
	// AppendPayload appends the bytes that follow the opcode.
	AppendPayload(dst []byte) []byte
}

// Login declares a connection's role, codec and nickname.
type Login struct {
	Flags Flags
	Nick  string
}

func (Login) Op() Opcode { return OpLogin }
func (m Login) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(m.Flags))
	return append(dst, m.Nick...)
}

// Info reports a key/value setting, such as the sender's sample rate.
type Info struct {
	Key   uint32
	Value uint32
}

func (Info) Op() Opcode { return OpInfo }
func (m Info) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.Key)
	return binary.LittleEndian.AppendUint32(dst, m.Value)
}

// Welcome acknowledges a login with the peer's track and the recording's
// start time in unix milliseconds.
type Welcome struct {
	Track     uint32
	StartTime float64
}

func (Welcome) Op() Opcode { return OpWelcome }
func (m Welcome) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.Track)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(m.StartTime))
}

// Ping carries the client's clock for offset estimation.
type Ping struct {
	ClientTime uint32
}

func (Ping) Op() Opcode { return OpPing }
func (m Ping) AppendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, m.ClientTime)
}

// Pong echoes the client time with the server's elapsed time in milliseconds.
type Pong struct {
	ClientTime uint32
	ServerTime float64
}

func (Pong) Op() Opcode { return OpPong }
func (m Pong) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.ClientTime)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(m.ServerTime))
}

// MaxGranule is one past the largest granule a data frame can carry.
const MaxGranule = uint64(1) << 48

// Data is one audio frame. Only the low 48 bits of Granule travel.
type Data struct {
	Granule uint64
	Payload []byte
}

func (Data) Op() Opcode { return OpData }
func (m Data) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, m.Granule&(MaxGranule-1))
	return append(dst, m.Payload...)
}

// User announces a track joining or leaving.
type User struct {
	Track     uint32
	Connected bool
	Nick      string
}

func (User) Op() Opcode { return OpUser }
func (m User) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.Track)
	dst = binary.LittleEndian.AppendUint32(dst, boolWord(m.Connected))
	return append(dst, m.Nick...)
}

// UserExtra carries additional track metadata such as an avatar URL.
type UserExtra struct {
	Track uint32
	Type  uint32
	Data  string
}

func (UserExtra) Op() Opcode { return OpUserExtra }
func (m UserExtra) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.Track)
	dst = binary.LittleEndian.AppendUint32(dst, m.Type)
	return append(dst, m.Data...)
}

// Speech reports a speaking-state change.
type Speech struct {
	Track    uint32
	Speaking bool
}

func (Speech) Op() Opcode { return OpSpeech }
func (m Speech) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, m.Track)
	return binary.LittleEndian.AppendUint32(dst, boolWord(m.Speaking))
}

// Close ends a connection.
type Close struct {
	Reason CloseReason
}

func (Close) Op() Opcode { return OpClose }
func (m Close) AppendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(m.Reason))
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
