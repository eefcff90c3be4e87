package wire

import "fmt"

// Role is the immutable purpose a connection declares at login.
type Role uint32

const (
	RolePing    Role = 0x0
	RoleData    Role = 0x1
	RoleMonitor Role = 0x2
)

func (r Role) String() string {
	switch r {
	case RolePing:
		return "ping"
	case RoleData:
		return "data"
	case RoleMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("role(%d)", uint32(r))
	}
}

// Codec is the audio format a data connection sends.
type Codec uint32

const (
	CodecOpus Codec = 0x0
	CodecFLAC Codec = 0x1
)

func (c Codec) String() string {
	switch c {
	case CodecOpus:
		return "opus"
	case CodecFLAC:
		return "flac"
	default:
		return fmt.Sprintf("codec(%d)", uint32(c))
	}
}

// Flags is the connection flags word sent with login.
type Flags uint32

const (
	flagRoleMask     Flags = 0x0F
	flagCodecMask    Flags = 0xF0
	flagCodecShift         = 4
	FlagContinuous   Flags = 0x100
	flagKnownBits          = flagRoleMask | flagCodecMask | FlagContinuous
	maxKnownRole           = RoleMonitor
	maxKnownCodecVal       = CodecFLAC
)

// NewFlags composes a flags word.
func NewFlags(role Role, codec Codec, continuous bool) Flags {
	f := Flags(role)&flagRoleMask | Flags(codec)<<flagCodecShift&flagCodecMask
	if continuous {
		f |= FlagContinuous
	}
	return f
}

// Role returns the low nibble.
func (f Flags) Role() Role { return Role(f & flagRoleMask) }

// Codec returns bits 4 to 7.
func (f Flags) Codec() Codec { return Codec((f & flagCodecMask) >> flagCodecShift) }

// Continuous reports the continuous (voice-activity) feature bit.
func (f Flags) Continuous() bool { return f&FlagContinuous != 0 }

// Validate returns the close reason for a flags word the server cannot
// accept, or CloseNormal when it is acceptable.
func (f Flags) Validate() CloseReason {
	if f.Role() > maxKnownRole {
		return CloseInvalidConnectionType
	}
	if f&^flagKnownBits != 0 || f.Codec() > maxKnownCodecVal {
		return CloseInvalidFlags
	}
	if f.Role() != RoleData && f&(flagCodecMask|FlagContinuous) != 0 {
		return CloseInvalidFlags
	}
	return CloseNormal
}
