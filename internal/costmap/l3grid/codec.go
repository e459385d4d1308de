package l3grid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the OccupancyGrid wire message.
const (
	fieldStamp      protowire.Number = 1 // int64 unix nanos
	fieldFrameID    protowire.Number = 2
	fieldWidth      protowire.Number = 3
	fieldHeight     protowire.Number = 4
	fieldResolution protowire.Number = 5 // float
	fieldOriginX    protowire.Number = 6 // float
	fieldOriginY    protowire.Number = 7 // float
	fieldData       protowire.Number = 8 // bytes, one int8 per cell
)

var errWireType = errors.New("unexpected wire type")

// MarshalProto encodes g in protobuf wire format.
func (g *OccupancyGrid) MarshalProto() []byte {
	return g.AppendProto(make([]byte, 0, 48+len(g.Header.FrameID)+len(g.Data)))
}

// AppendProto appends the protobuf encoding of g to b.
func (g *OccupancyGrid) AppendProto(b []byte) []byte {
	if !g.Header.Stamp.IsZero() {
		b = protowire.AppendTag(b, fieldStamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(g.Header.Stamp.UnixNano()))
	}
	if g.Header.FrameID != "" {
		b = protowire.AppendTag(b, fieldFrameID, protowire.BytesType)
		b = protowire.AppendString(b, g.Header.FrameID)
	}
	b = protowire.AppendTag(b, fieldWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Info.Width))
	b = protowire.AppendTag(b, fieldHeight, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Info.Height))
	b = appendFloat(b, fieldResolution, g.Info.Resolution)
	b = appendFloat(b, fieldOriginX, g.Info.Origin.X)
	b = appendFloat(b, fieldOriginY, g.Info.Origin.Y)

	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(g.Data)))
	for _, v := range g.Data {
		b = append(b, byte(v))
	}
	return b
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// UnmarshalProto decodes a grid produced by MarshalProto. Unknown fields
// are skipped.
func UnmarshalProto(b []byte) (*OccupancyGrid, error) {
	g := &OccupancyGrid{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldStamp, fieldWidth, fieldHeight:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("field %d: %w", num, errWireType)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldStamp:
				g.Header.Stamp = time.Unix(0, int64(v)).UTC()
			case fieldWidth:
				g.Info.Width = uint32(v)
			case fieldHeight:
				g.Info.Height = uint32(v)
			}
		case fieldResolution, fieldOriginX, fieldOriginY:
			if typ != protowire.Fixed32Type {
				return nil, fmt.Errorf("field %d: %w", num, errWireType)
			}
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			f := math.Float32frombits(v)
			switch num {
			case fieldResolution:
				g.Info.Resolution = f
			case fieldOriginX:
				g.Info.Origin.X = f
			case fieldOriginY:
				g.Info.Origin.Y = f
			}
		case fieldFrameID, fieldData:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("field %d: %w", num, errWireType)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldFrameID {
				g.Header.FrameID = string(v)
				continue
			}
			g.Data = make([]int8, len(v))
			for i, c := range v {
				g.Data[i] = int8(c)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if len(g.Data) != g.CellCount() {
		return nil, fmt.Errorf("%w: %d cells for %dx%d", ErrGridSize, len(g.Data), g.Info.Width, g.Info.Height)
	}
	return g, nil
}
