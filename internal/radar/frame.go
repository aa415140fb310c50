// Package radar decodes the INS I/Q radar's UART frames and filters the
// resulting samples into a movement magnitude.
package radar

import "encoding/binary"

// Frame layout of the INS radar's measurement report.
const (
	StartDelimiter = 0xA2
	EndDelimiter   = 0x16
	WakeupByte     = 0x11

	FrameLength   = 14
	CommandLength = 15

	checksumIndex = 12
	inPhaseIndex  = 7
	quadIndex     = 9
)

// FunctionCode selects a radar command.
type FunctionCode byte

const (
	ApplicationStop  FunctionCode = 0xE4
	ApplicationStart FunctionCode = 0xEB
)

// Sample is one decoded measurement. Valid is false when the checksum or
// frame terminator did not match; the I/Q values are then meaningless.
type Sample struct {
	InPhase    int16
	Quadrature int16
	Valid      bool
}

// Checksum returns the sum modulo 256 of b[from..to] inclusive.
func Checksum(b []byte, from, to int) byte {
	var sum byte
	for _, v := range b[from : to+1] {
		sum += v
	}
	return sum
}

// DecodeFrame decodes a complete frame. It does not check the start byte.
func DecodeFrame(frame []byte) Sample {
	if len(frame) != FrameLength {
		return Sample{}
	}
	s := Sample{
		InPhase:    int16(binary.BigEndian.Uint16(frame[inPhaseIndex:])),
		Quadrature: int16(binary.BigEndian.Uint16(frame[quadIndex:])),
	}
	s.Valid = frame[FrameLength-1] == EndDelimiter &&
		Checksum(frame, 1, 11) == frame[checksumIndex]
	return s
}

// Decoder assembles frames from a byte stream. The start delimiter always
// restarts the buffer, so a partial frame interrupted by a new start byte is
// discarded without producing a sample.
type Decoder struct {
	buf     [FrameLength]byte
	n       int
	inFrame bool
}

// Feed consumes one byte and reports a sample each time FrameLength bytes
// have been collected since the last start delimiter.
func (d *Decoder) Feed(b byte) (Sample, bool) {
	if b == StartDelimiter {
		d.n = 0
		d.inFrame = true
	}
	if !d.inFrame {
		return Sample{}, false
	}
	d.buf[d.n] = b
	d.n++
	if d.n < FrameLength {
		return Sample{}, false
	}
	d.inFrame = false
	d.n = 0
	return DecodeFrame(d.buf[:]), true
}

// CommandFrame builds the 15-byte command for fn. The checksum covers bytes
// 2 through 12.
func CommandFrame(fn FunctionCode) []byte {
	cmd := make([]byte, CommandLength)
	cmd[0] = WakeupByte
	cmd[1] = StartDelimiter
	cmd[2] = 0x80
	cmd[3] = 0x01
	cmd[4] = byte(fn)
	cmd[13] = Checksum(cmd, 2, 12)
	cmd[14] = EndDelimiter
	return cmd
}

// EncodeFrame builds a valid measurement frame for i and q. Dev mode and tests
// use it to synthesize radar traffic.
func EncodeFrame(i, q int16) []byte {
	f := make([]byte, FrameLength)
	f[0] = StartDelimiter
	f[1] = 0x80
	f[2] = 0x02
	binary.BigEndian.PutUint16(f[inPhaseIndex:], uint16(i))
	binary.BigEndian.PutUint16(f[quadIndex:], uint16(q))
	f[checksumIndex] = Checksum(f, 1, 11)
	f[FrameLength-1] = EndDelimiter
	return f
}
