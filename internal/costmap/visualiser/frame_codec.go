package visualiser

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

const (
	frameFieldTopic protowire.Number = 1
	frameFieldGrid  protowire.Number = 2
)

// EncodeFrame wraps an encoded grid with the topic it was published on.
func EncodeFrame(topic string, g *l3grid.OccupancyGrid) []byte {
	b := protowire.AppendTag(nil, frameFieldTopic, protowire.BytesType)
	b = protowire.AppendString(b, topic)
	b = protowire.AppendTag(b, frameFieldGrid, protowire.BytesType)
	return protowire.AppendBytes(b, g.MarshalProto())
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(b []byte) (string, *l3grid.OccupancyGrid, error) {
	var topic string
	var grid *l3grid.OccupancyGrid
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != frameFieldTopic && num != frameFieldGrid) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num == frameFieldTopic {
			topic = string(v)
			continue
		}
		g, err := l3grid.UnmarshalProto(v)
		if err != nil {
			return "", nil, fmt.Errorf("decode grid: %w", err)
		}
		grid = g
	}
	if grid == nil {
		return "", nil, fmt.Errorf("frame has no grid")
	}
	return topic, grid, nil
}
