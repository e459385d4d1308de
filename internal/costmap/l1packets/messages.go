package l1packets

import "fmt"

// MessageType tags the body that follows in a datagram.
type MessageType uint8

const (
	TypeCustomMsg   MessageType = 0x01
	TypeNavState    MessageType = 0x02
	TypeSaveCommand MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case TypeCustomMsg:
		return "custom_msg"
	case TypeNavState:
		return "nav_state"
	case TypeSaveCommand:
		return "save_command"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Message is implemented by every decodable wire message.
type Message interface {
	Type() MessageType
}

// Stamp is a ROS style capture time.
type Stamp struct {
	Sec     int32
	Nanosec uint32
}

// Micros returns floor((sec*1e9 + nanosec) / 1000) using exact integer
// arithmetic.
func (s Stamp) Micros() int64 {
	nanos := int64(s.Sec)*1_000_000_000 + int64(s.Nanosec)
	q := nanos / 1000
	if nanos%1000 < 0 {
		q--
	}
	return q
}

// CustomPoint is one Livox return.
type CustomPoint struct {
	OffsetTime   uint32 // ns offset from Timebase
	X, Y, Z      float32
	Reflectivity uint8
	Tag          uint8
	Line         uint8
}

// CustomMsg is one Livox point batch. PointNum is the count declared by the
// sensor and is not guaranteed to match len(Points).
type CustomMsg struct {
	Stamp    Stamp
	FrameID  string
	Timebase uint64
	PointNum uint32
	LidarID  uint8
	Points   []CustomPoint
}

// Type implements Message.
func (*CustomMsg) Type() MessageType { return TypeCustomMsg }

// Quaternion is stored as (w, x, y, z).
type Quaternion struct {
	W, X, Y, Z float64
}

// Vector3 is a position in metres.
type Vector3 struct {
	X, Y, Z float64
}

// NavState is one pose sample from the navigation filter.
type NavState struct {
	Stamp      Stamp
	Quaternion Quaternion
	Position   Vector3
}

// Type implements Message.
func (*NavState) Type() MessageType { return TypeNavState }

// SaveCommand requests a save-and-export when Data is true.
type SaveCommand struct {
	Data bool
}

// Type implements Message.
func (*SaveCommand) Type() MessageType { return TypeSaveCommand }
