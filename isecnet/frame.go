// Package isecnet implements the ISECNet protocol spoken by Intelbras AMT
// panels (AMT-2018, AMT-4010) that connect out to a monitoring receiver,
// and a listener adapter playing that receiver.
package isecnet

import (
	"errors"

	"github.com/caarlos0/intelbras2mqtt/alarm"
)

const (
	cmdMobile   = 0xe9
	cmdConnInfo = 0x94
	cmdAck      = 0xfe
	heartbeat   = 0xf7
)

// largest size field a panel ever sends (full status with ack prefix).
const maxSize = 0x7f

// ErrIncomplete means the buffer does not hold a whole frame yet.
var ErrIncomplete = errors.New("incomplete frame")

// Frame is one ISECNet frame: [size][command][content...][checksum], size
// being the length of command plus content. Heartbeats are the bare byte
// 0xF7.
type Frame struct {
	Command   byte
	Content   []byte
	Heartbeat bool
}

// Encode builds a frame around content.
func Encode(cmd byte, content []byte) []byte {
	buf := make([]byte, 0, len(content)+3)
	buf = append(buf, byte(len(content)+1), cmd)
	buf = append(buf, content...)
	return append(buf, checksum(buf))
}

// Bytes encodes f.
func (f Frame) Bytes() []byte {
	if f.Heartbeat {
		return []byte{heartbeat}
	}
	return Encode(f.Command, f.Content)
}

// ackFrame is the short acknowledgement sent back for heartbeats and
// connection info frames.
var ackFrame = Encode(cmdAck, nil)

// Decode decodes the first frame in buf, returning it and the number of
// bytes it used. ErrIncomplete is returned while more bytes are needed. On
// a *alarm.FrameError the returned count is the number of bytes to drop to
// reach the next plausible frame start.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, ErrIncomplete
	}
	if buf[0] == heartbeat {
		return Frame{Heartbeat: true}, 1, nil
	}

	size := int(buf[0])
	if size < 1 || size > maxSize {
		n := resync(buf)
		return Frame{}, n, &alarm.FrameError{Reason: "invalid size", Discard: n}
	}
	total := size + 2
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	if checksum(buf[:total-1]) != buf[total-1] {
		n := resync(buf)
		return Frame{}, n, &alarm.FrameError{Reason: "checksum mismatch", Discard: n}
	}

	content := make([]byte, size-1)
	copy(content, buf[2:total-1])
	return Frame{Command: buf[1], Content: content}, total, nil
}

// resync finds the next offset that could start a frame.
func resync(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		if plausible(buf[i:]) {
			return i
		}
	}
	return len(buf)
}

func plausible(buf []byte) bool {
	if buf[0] == heartbeat {
		return true
	}
	if buf[0] < 1 || buf[0] > maxSize {
		return false
	}
	if len(buf) == 1 {
		return true
	}
	switch buf[1] {
	case cmdMobile, cmdConnInfo, cmdAck:
		return true
	}
	return false
}

func checksum(buf []byte) byte {
	var check byte
	for _, n := range buf {
		check ^= n
	}
	return check ^ 0xff
}

// Scanner accumulates socket reads and splits them into frames.
type Scanner struct {
	buf []byte
}

// Write appends received bytes.
func (s *Scanner) Write(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next buffered frame. It returns ErrIncomplete when the
// buffer is exhausted, and a *alarm.FrameError after dropping garbage.
func (s *Scanner) Next() (Frame, error) {
	f, n, err := Decode(s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return f, err
}

// Buffered returns the number of bytes waiting for a complete frame.
func (s *Scanner) Buffered() int {
	return len(s.buf)
}
