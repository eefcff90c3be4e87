package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	"voxtape/internal/services"
)

func TestMarshalLayout(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want []byte
	}{
		{
			name: "login",
			msg:  Login{Flags: NewFlags(RoleData, CodecFLAC, true), Nick: "alice"},
			want: append([]byte{0x10, 0, 0, 0, 0x11, 0x01, 0, 0}, "alice"...),
		},
		{
			name: "info",
			msg:  Info{Key: InfoSampleRate, Value: 44100},
			want: []byte{0x11, 0, 0, 0, 0, 0, 0, 0, 0x44, 0xAC, 0, 0},
		},
		{
			name: "ping",
			msg:  Ping{ClientTime: 0x01020304},
			want: []byte{0x20, 0, 0, 0, 0x04, 0x03, 0x02, 0x01},
		},
		{
			name: "data",
			msg:  Data{Granule: 0x0000_0605_0403_0201, Payload: []byte{0xAA}},
			want: []byte{0x30, 0, 0, 0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0, 0, 0xAA},
		},
		{
			name: "user",
			msg:  User{Track: 7, Connected: true, Nick: "bob"},
			want: append([]byte{0x40, 0, 0, 0, 7, 0, 0, 0, 1, 0, 0, 0}, "bob"...),
		},
		{
			name: "userExtra",
			msg:  UserExtra{Track: 2, Type: UserExtraAvatar, Data: "u"},
			want: []byte{0x41, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 'u'},
		},
		{
			name: "speech",
			msg:  Speech{Track: 3, Speaking: false},
			want: []byte{0x42, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "close",
			msg:  Close{Reason: CloseAlreadyConnected},
			want: []byte{0x02, 0, 0, 0, 0x21, 0, 0, 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Marshal(tc.msg)
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("Marshal = %x, want %x", got, tc.want)
			}
			back, err := Unmarshal(got)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(back, tc.msg) {
				t.Fatalf("decoded %#v, want %#v", back, tc.msg)
			}
		})
	}
}

func TestFloatFields(t *testing.T) {
	frame := Marshal(Pong{ClientTime: 9, ServerTime: 1234.5})
	if len(frame) != 16 {
		t.Fatalf("pong length %d", len(frame))
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(frame[8:])); got != 1234.5 {
		t.Fatalf("server time %v", got)
	}

	w := Marshal(Welcome{Track: 4, StartTime: 1.7e12})
	m, err := Unmarshal(w)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := m.(Welcome); got.Track != 4 || got.StartTime != 1.7e12 {
		t.Fatalf("welcome %+v", got)
	}
}

func TestDataGranuleKeepsLow48Bits(t *testing.T) {
	frame := Marshal(Data{Granule: 0xFFFF_0000_0000_0010})
	m, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := m.(Data).Granule; got != 0x10 {
		t.Fatalf("granule = %#x", got)
	}
	if frame[10] != 0 || frame[11] != 0 {
		t.Fatal("top bytes of granule slot must be zero")
	}
}

func TestDataPayloadDoesNotAliasFrame(t *testing.T) {
	frame := Marshal(Data{Payload: []byte{1, 2, 3}})
	m, _ := Unmarshal(frame)
	frame[12] = 9
	if m.(Data).Payload[0] != 1 {
		t.Fatal("payload aliases the input frame")
	}
}

func TestUnmarshalRejectsShortFrames(t *testing.T) {
	for _, op := range []Opcode{OpLogin, OpInfo, OpWelcome, OpPing, OpPong, OpData, OpUser, OpUserExtra, OpSpeech, OpClose} {
		frame := binary.LittleEndian.AppendUint32(nil, uint32(op))
		frame = append(frame, 1, 2, 3)
		_, err := Unmarshal(frame)
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected ProtocolError, got %v", op, err)
		}
		if pe.Reason != CloseInvalidMessage || pe.Op != op || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("%s: unexpected error %v", op, err)
		}
		if !errors.Is(err, services.ErrProtocol) {
			t.Fatalf("%s: error does not carry ErrProtocol", op)
		}
	}
	if _, err := Unmarshal([]byte{1, 2}); ReasonOf(err) != CloseInvalidMessage {
		t.Fatalf("truncated opcode = %v", err)
	}
	if _, err := Unmarshal([]byte{0x99, 0, 0, 0}); ReasonOf(err) != CloseInvalidMessage || err == nil {
		t.Fatalf("unknown opcode = %v", err)
	}
}

func TestFlags(t *testing.T) {
	f := NewFlags(RoleData, CodecFLAC, true)
	if f != 0x111 {
		t.Fatalf("flags = %#x", uint32(f))
	}
	if f.Role() != RoleData || f.Codec() != CodecFLAC || !f.Continuous() {
		t.Fatalf("decoded %s %s %v", f.Role(), f.Codec(), f.Continuous())
	}

	cases := []struct {
		flags Flags
		want  CloseReason
	}{
		{NewFlags(RoleData, CodecOpus, false), CloseNormal},
		{NewFlags(RoleMonitor, CodecOpus, false), CloseNormal},
		{NewFlags(RolePing, CodecOpus, false), CloseNormal},
		{Flags(0x3), CloseInvalidConnectionType},
		{Flags(0x21), CloseInvalidFlags},
		{Flags(0x1001), CloseInvalidFlags},
		{Flags(0x102), CloseInvalidFlags},
	}
	for _, tc := range cases {
		if got := tc.flags.Validate(); got != tc.want {
			t.Errorf("Validate(%#x) = %s, want %s", uint32(tc.flags), got, tc.want)
		}
	}
}

func TestValidateNick(t *testing.T) {
	if nick, err := ValidateNick("  alice  "); err != nil || nick != "alice" {
		t.Fatalf("ValidateNick = %q, %v", nick, err)
	}
	for _, bad := range []string{"", "   ", "a\x00b", "\xff\xfe", strings.Repeat("x", MaxNickRunes+1)} {
		_, err := ValidateNick(bad)
		if ReasonOf(err) != CloseInvalidUsername {
			t.Errorf("ValidateNick(%q) = %v", bad, err)
		}
	}
}

func TestCloseReasonStrings(t *testing.T) {
	if CloseAlreadyConnected.String() != "already connected" || CloseReason(0x99).String() != "close reason 0x99" {
		t.Fatal("unexpected close reason strings")
	}
	err := Refuse(CloseNotFound, OpLogin, "recording %s", "abc")
	if err.Error() != "wire: not found (login): recording abc" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
