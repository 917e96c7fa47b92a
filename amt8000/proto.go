package amt8000

import (
	"errors"
	"fmt"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

const (
	cmdAuth         = 0xf0f0
	cmdDisconnect   = 0xf0f1
	cmdStatus       = 0x0b4a
	cmdPanic        = 0x401a
	cmdArm          = 0x401e
	cmdTurnOffSiren = 0x4019
)

const (
	subCmdDisarm = 0x00
	subCmdArm    = 0x01
)

const (
	panelID    = 0x0000
	ourID      = 0x8ffe
	headerSize = 8
	maxLength  = 0x200
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrOpenZones       = errors.New("open zones")
)

// ErrIncomplete means the buffer does not hold a whole frame yet.
var ErrIncomplete = errors.New("incomplete frame")

// Frame is one ISECNet v2 frame:
// dst(2) src(2) length(2) command(2) payload checksum, length counting the
// command and the payload.
type Frame struct {
	Command int
	Payload []byte
}

func makeAuthPayload(pwd string) ([]byte, error) {
	contactID, err := contactIDEncode(pwd)
	if err != nil {
		return nil, err
	}
	payload := []byte{0x02} // software type
	payload = append(payload, contactID...)
	payload = append(payload, 0x10) // software version
	return makePayload(cmdAuth, payload), nil
}

func makePayload(cmd int, input []byte) []byte {
	payload := make([]byte, 0, headerSize+len(input)+1)
	payload = append(payload, splitIntoOctets(panelID)...)
	payload = append(payload, splitIntoOctets(ourID)...)
	payload = append(payload, splitIntoOctets(len(input)+2)...)
	payload = append(payload, splitIntoOctets(cmd)...)
	payload = append(payload, input...)
	return append(payload, checksum(payload))
}

func splitIntoOctets(n int) []byte {
	return []byte{byte(n / 256), byte(n % 256)}
}

func mergeOctets(buf []byte) int {
	return int(buf[0])*256 + int(buf[1])
}

func checksum(buf []byte) byte {
	var check byte
	for _, n := range buf {
		check ^= n
	}
	return check ^ 0xff
}

// contactIDEncode encodes the password one digit per byte, zero being 0x0a.
func contactIDEncode(pwd string) ([]byte, error) {
	if err := alarm.CheckPassword(pwd); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(pwd))
	for i := 0; i < len(pwd); i++ {
		digit := pwd[i] - '0'
		if digit == 0 {
			digit = 0x0a
		}
		buf = append(buf, digit)
	}
	return buf, nil
}

func parseAuthResponse(f Frame) error {
	if f.Command != cmdAuth {
		return fmt.Errorf("invalid command: %#04x", f.Command)
	}
	if len(f.Payload) == 0 {
		return fmt.Errorf("invalid response: empty payload")
	}

	switch f.Payload[0] {
	case 0:
		return nil
	case 1:
		return ErrInvalidPassword
	case 2:
		return fmt.Errorf("authentication failed: incorrect software version")
	case 3:
		return fmt.Errorf("authentication failed: panel will call back")
	case 4:
		return fmt.Errorf("authentication failed: waiting for user permission")
	default:
		return fmt.Errorf("authentication failed: %v", f.Payload[0])
	}
}

// Decode decodes the first frame in buf, returning it and the number of
// bytes used. ErrIncomplete is returned while more bytes are needed. On a
// *alarm.FrameError the count is the number of bytes to drop.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < 6 {
		return Frame{}, 0, ErrIncomplete
	}
	length := mergeOctets(buf[4:6])
	if length < 2 || length > maxLength {
		n := resync(buf)
		return Frame{}, n, &alarm.FrameError{Reason: "invalid length", Discard: n}
	}
	total := 6 + length + 1
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	if checksum(buf[:total-1]) != buf[total-1] {
		n := resync(buf)
		return Frame{}, n, &alarm.FrameError{Reason: "checksum mismatch", Discard: n}
	}
	payload := make([]byte, length-2)
	copy(payload, buf[headerSize:total-1])
	return Frame{Command: mergeOctets(buf[6:8]), Payload: payload}, total, nil
}

// resync skips to the next offset holding a plausible header: one of the
// two known ids followed by a sane length.
func resync(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		if plausible(buf[i:]) {
			return i
		}
	}
	return len(buf)
}

func plausible(buf []byte) bool {
	if len(buf) < 2 {
		return true
	}
	id := mergeOctets(buf[0:2])
	if id != panelID && id != ourID {
		return false
	}
	if len(buf) < 6 {
		return true
	}
	length := mergeOctets(buf[4:6])
	return length >= 2 && length <= maxLength
}

// Scanner accumulates socket reads and splits them into frames.
type Scanner struct {
	buf []byte
}

func (s *Scanner) Write(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next buffered frame, ErrIncomplete when none is
// complete, or a *alarm.FrameError after dropping garbage.
func (s *Scanner) Next() (Frame, error) {
	f, n, err := Decode(s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return f, err
}

// Reset drops everything buffered.
func (s *Scanner) Reset() {
	s.buf = nil
}
