package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sigurn/crc8"
)

/*
Spinning Rangefinder Frame Layout

The rangefinder streams fixed-length little-endian frames over a 230400 baud
UART. Each frame covers a small angular slice of one revolution.

FRAME STRUCTURE (47 bytes for 12 points):
├── Header     (1)  0x54
├── VerLen     (1)  0x2C - low 5 bits carry the point count; with the header
│                   it forms the two-byte sync marker
├── Speed      (2)  rotation speed in degrees per second
├── StartAngle (2)  centidegrees
├── Points     (12 × 3) distance mm (2) + quality (1)
├── StopAngle  (2)  centidegrees, numerically below StartAngle once per
│                   revolution when the slice crosses 0°
├── Timestamp  (2)  milliseconds, device clock
└── Checksum   (1)  CRC-8, poly 0x4D, init 0, over every preceding byte

Angles are interpolated linearly across the points of one frame. The
decoder never clamps distances or angles beyond wrapping into [0, 360).
*/

const (
	HeaderByte     = 0x54
	VerLenByte     = 0x2C
	PointsPerFrame = 12
	PointSize      = 3
	FrameSize      = 11 + PointsPerFrame*PointSize // 47

	AngleScale = 100.0 // centidegrees per degree

	offsetSpeed      = 2
	offsetStartAngle = 4
	offsetPoints     = 6
	offsetStopAngle  = offsetPoints + PointsPerFrame*PointSize
	offsetTimestamp  = offsetStopAngle + 2
	offsetChecksum   = offsetTimestamp + 2
)

var (
	// ErrFrameLength reports a buffer or length field that does not match
	// the configured frame size.
	ErrFrameLength = errors.New("frame length mismatch")
	// ErrFrameHeader reports a buffer that does not start with the marker.
	ErrFrameHeader = errors.New("frame header mismatch")
	// ErrFrameChecksum reports a CRC mismatch.
	ErrFrameChecksum = errors.New("frame checksum mismatch")
)

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x4D,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xC3,
	Name:   "CRC-8/RANGEFINDER",
})

// Point is one raw distance sample.
type Point struct {
	Distance uint16 // millimetres, 0 = no return
	Quality  uint8  // signal strength
}

// Frame is one decoded wire frame.
type Frame struct {
	Speed      uint16
	StartAngle uint16 // centidegrees
	Points     [PointsPerFrame]Point
	StopAngle  uint16 // centidegrees
	Timestamp  uint16
	Checksum   uint8
}

// Measurement is one interpolated polar sample.
type Measurement struct {
	AngleDeg   float64 // [0, 360)
	DistanceMM int
	Quality    uint8
}

// Checksum computes the frame CRC over data.
func Checksum(data []byte) uint8 {
	return crc8.Checksum(data, crcTable)
}

// Unmarshal validates and decodes exactly one frame.
func Unmarshal(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) != FrameSize {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(buf), FrameSize)
	}
	if buf[0] != HeaderByte {
		return f, fmt.Errorf("%w: 0x%02X", ErrFrameHeader, buf[0])
	}
	if n := int(buf[1] & 0x1F); n != PointsPerFrame {
		return f, fmt.Errorf("%w: length field says %d points, want %d", ErrFrameLength, n, PointsPerFrame)
	}
	if got, want := buf[offsetChecksum], Checksum(buf[:offsetChecksum]); got != want {
		return f, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrFrameChecksum, got, want)
	}

	f.Speed = binary.LittleEndian.Uint16(buf[offsetSpeed:])
	f.StartAngle = binary.LittleEndian.Uint16(buf[offsetStartAngle:])
	for i := range f.Points {
		off := offsetPoints + i*PointSize
		f.Points[i] = Point{
			Distance: binary.LittleEndian.Uint16(buf[off:]),
			Quality:  buf[off+2],
		}
	}
	f.StopAngle = binary.LittleEndian.Uint16(buf[offsetStopAngle:])
	f.Timestamp = binary.LittleEndian.Uint16(buf[offsetTimestamp:])
	f.Checksum = buf[offsetChecksum]
	return f, nil
}

// Encode serialises f and fills in its checksum. Used for fixtures and the
// dev-mode replay stream.
func Encode(f Frame) []byte {
	buf := make([]byte, FrameSize)
	buf[0] = HeaderByte
	buf[1] = VerLenByte
	binary.LittleEndian.PutUint16(buf[offsetSpeed:], f.Speed)
	binary.LittleEndian.PutUint16(buf[offsetStartAngle:], f.StartAngle)
	for i, p := range f.Points {
		off := offsetPoints + i*PointSize
		binary.LittleEndian.PutUint16(buf[off:], p.Distance)
		buf[off+2] = p.Quality
	}
	binary.LittleEndian.PutUint16(buf[offsetStopAngle:], f.StopAngle)
	binary.LittleEndian.PutUint16(buf[offsetTimestamp:], f.Timestamp)
	buf[offsetChecksum] = Checksum(buf[:offsetChecksum])
	return buf
}

// Measurements interpolates the frame's points between its start and stop
// angles and adds offsetMM to every distance.
func (f Frame) Measurements(offsetMM int) []Measurement {
	start := float64(f.StartAngle) / AngleScale
	stop := float64(f.StopAngle) / AngleScale
	if stop < start {
		stop += 360
	}
	step := (stop - start) / float64(PointsPerFrame-1)

	out := make([]Measurement, 0, PointsPerFrame)
	for i, p := range f.Points {
		out = append(out, Measurement{
			AngleDeg:   WrapDegrees(start + step*float64(i)),
			DistanceMM: int(p.Distance) + offsetMM,
			Quality:    p.Quality,
		})
	}
	return out
}

// WrapDegrees maps any angle into [0, 360).
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
