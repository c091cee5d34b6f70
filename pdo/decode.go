package pdo

import (
	"errors"
	"fmt"
	"math"
)

// Field offsets inside the process data frame. The layout is packed,
// little-endian, with no padding between fields.
const (
	offStatusWord       = 0
	offActualPosition   = 2
	offActualVelocity   = 6
	offActualTorque     = 10
	offModeDisplay      = 12
	offErrorCode        = 13
	offSystemStatus     = 15
	offMotorTemperature = 17

	// FrameSize is the minimum number of bytes a frame must carry.
	FrameSize = 21
)

// ErrShortFrame is returned when a buffer is too short to hold a full frame.
var ErrShortFrame = errors.New("pdo: not enough data")

// Decode parses a raw process data frame into a [Record].
//
// Only the protocol fields are populated; the receipt metadata stays at
// its zero value. Decode checks nothing beyond the buffer length: any
// bit pattern is taken as-is, including values that look like faults.
func Decode(buf []byte) (Record, error) {
	if len(buf) < FrameSize {
		return Record{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortFrame, len(buf), FrameSize)
	}

	return Record{
		StatusWord:       leUint16(buf, offStatusWord),
		ActualPosition:   leInt32(buf, offActualPosition),
		ActualVelocity:   leInt32(buf, offActualVelocity),
		ActualTorque:     leInt16(buf, offActualTorque),
		ModeDisplay:      buf[offModeDisplay],
		ErrorCode:        leUint16(buf, offErrorCode),
		SystemStatus:     leUint16(buf, offSystemStatus),
		MotorTemperature: leFloat32(buf, offMotorTemperature),
	}, nil
}

func leUint16(buf []byte, offset int) uint16 {
	return uint16(buf[offset]) | uint16(buf[offset+1])<<8
}

func leUint32(buf []byte, offset int) uint32 {
	return uint32(buf[offset]) |
		uint32(buf[offset+1])<<8 |
		uint32(buf[offset+2])<<16 |
		uint32(buf[offset+3])<<24
}

// Signed fields are rebuilt as the unsigned bit pattern first and then
// reinterpreted as two's-complement, never converted arithmetically.
func leInt16(buf []byte, offset int) int16 {
	return int16(leUint16(buf, offset))
}

func leInt32(buf []byte, offset int) int32 {
	return int32(leUint32(buf, offset))
}

// The temperature field is the raw IEEE-754 bit pattern of a single
// precision float, not a numeric conversion.
func leFloat32(buf []byte, offset int) float32 {
	return math.Float32frombits(leUint32(buf, offset))
}
