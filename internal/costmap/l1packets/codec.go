package l1packets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire sizes in bytes.
const (
	customHeaderFixedSize = 4 + 4 + 1 + 8 + 4 + 1 + 3 // stamp, frame id length, timebase, point_num, lidar_id, reserved
	CustomPointSize       = 4 + 4*3 + 3
	NavStateSize          = 4 + 4 + 8*4 + 8*3
	SaveCommandSize       = 1
)

var (
	// ErrShortPacket is returned when a datagram is too short for its header.
	ErrShortPacket = errors.New("short packet")
	// ErrUnknownMessage is returned for an unrecognised MessageType.
	ErrUnknownMessage = errors.New("unknown message type")
)

var le = binary.LittleEndian

// Decode parses a type-tagged datagram.
func Decode(datagram []byte) (Message, error) {
	if len(datagram) < 1 {
		return nil, fmt.Errorf("empty datagram: %w", ErrShortPacket)
	}
	body := datagram[1:]
	switch t := MessageType(datagram[0]); t {
	case TypeCustomMsg:
		return ParseCustomMsg(body)
	case TypeNavState:
		return ParseNavState(body)
	case TypeSaveCommand:
		return ParseSaveCommand(body)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, t)
	}
}

// ParseCustomMsg parses a CustomMsg body. Only the header must be complete:
// every whole point record present is decoded, a trailing partial record is
// ignored, and PointNum is kept as declared.
func ParseCustomMsg(b []byte) (*CustomMsg, error) {
	if len(b) < 9 {
		return nil, fmt.Errorf("custom_msg header (%d bytes): %w", len(b), ErrShortPacket)
	}
	m := &CustomMsg{
		Stamp: Stamp{Sec: int32(le.Uint32(b[0:4])), Nanosec: le.Uint32(b[4:8])},
	}
	idLen := int(b[8])
	if len(b) < customHeaderFixedSize+idLen {
		return nil, fmt.Errorf("custom_msg header (%d bytes, frame id %d): %w", len(b), idLen, ErrShortPacket)
	}
	off := 9
	m.FrameID = string(b[off : off+idLen])
	off += idLen
	m.Timebase = le.Uint64(b[off : off+8])
	off += 8
	m.PointNum = le.Uint32(b[off : off+4])
	off += 4
	m.LidarID = b[off]
	off += 4 // lidar_id + 3 reserved

	records := (len(b) - off) / CustomPointSize
	m.Points = make([]CustomPoint, records)
	for i := range m.Points {
		p := b[off : off+CustomPointSize]
		m.Points[i] = CustomPoint{
			OffsetTime:   le.Uint32(p[0:4]),
			X:            math.Float32frombits(le.Uint32(p[4:8])),
			Y:            math.Float32frombits(le.Uint32(p[8:12])),
			Z:            math.Float32frombits(le.Uint32(p[12:16])),
			Reflectivity: p[16],
			Tag:          p[17],
			Line:         p[18],
		}
		off += CustomPointSize
	}
	return m, nil
}

// AppendBinary appends the type-tagged encoding of m to b.
func (m *CustomMsg) AppendBinary(b []byte) ([]byte, error) {
	if len(m.FrameID) > math.MaxUint8 {
		return b, fmt.Errorf("frame id too long: %d bytes", len(m.FrameID))
	}
	b = append(b, byte(TypeCustomMsg))
	b = le.AppendUint32(b, uint32(m.Stamp.Sec))
	b = le.AppendUint32(b, m.Stamp.Nanosec)
	b = append(b, byte(len(m.FrameID)))
	b = append(b, m.FrameID...)
	b = le.AppendUint64(b, m.Timebase)
	b = le.AppendUint32(b, m.PointNum)
	b = append(b, m.LidarID, 0, 0, 0)
	for _, p := range m.Points {
		b = le.AppendUint32(b, p.OffsetTime)
		b = le.AppendUint32(b, math.Float32bits(p.X))
		b = le.AppendUint32(b, math.Float32bits(p.Y))
		b = le.AppendUint32(b, math.Float32bits(p.Z))
		b = append(b, p.Reflectivity, p.Tag, p.Line)
	}
	return b, nil
}

// ParseNavState parses a NavState body.
func ParseNavState(b []byte) (*NavState, error) {
	if len(b) < NavStateSize {
		return nil, fmt.Errorf("nav_state (%d bytes, want %d): %w", len(b), NavStateSize, ErrShortPacket)
	}
	f := func(i int) float64 {
		o := 8 + i*8
		return math.Float64frombits(le.Uint64(b[o : o+8]))
	}
	return &NavState{
		Stamp:      Stamp{Sec: int32(le.Uint32(b[0:4])), Nanosec: le.Uint32(b[4:8])},
		Quaternion: Quaternion{W: f(0), X: f(1), Y: f(2), Z: f(3)},
		Position:   Vector3{X: f(4), Y: f(5), Z: f(6)},
	}, nil
}

// AppendBinary appends the type-tagged encoding of m to b.
func (m *NavState) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, byte(TypeNavState))
	b = le.AppendUint32(b, uint32(m.Stamp.Sec))
	b = le.AppendUint32(b, m.Stamp.Nanosec)
	for _, v := range []float64{
		m.Quaternion.W, m.Quaternion.X, m.Quaternion.Y, m.Quaternion.Z,
		m.Position.X, m.Position.Y, m.Position.Z,
	} {
		b = le.AppendUint64(b, math.Float64bits(v))
	}
	return b, nil
}

// ParseSaveCommand parses a SaveCommand body. Any non-zero byte is true.
func ParseSaveCommand(b []byte) (*SaveCommand, error) {
	if len(b) < SaveCommandSize {
		return nil, fmt.Errorf("save_command: %w", ErrShortPacket)
	}
	return &SaveCommand{Data: b[0] != 0}, nil
}

// AppendBinary appends the type-tagged encoding of m to b.
func (m *SaveCommand) AppendBinary(b []byte) ([]byte, error) {
	v := byte(0)
	if m.Data {
		v = 1
	}
	return append(b, byte(TypeSaveCommand), v), nil
}
