package visualiser

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
)

// Client talks to a CostmapService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// LatestGrid fetches the most recent grid published on topic.
func (c *Client) LatestGrid(ctx context.Context, topic string, opts ...grpc.CallOption) (*l3grid.OccupancyGrid, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, LatestGridMethod, wrapperspb.String(topic), out, opts...); err != nil {
		return nil, err
	}
	_, g, err := DecodeFrame(out.GetValue())
	return g, err
}

// GridStream yields frames from StreamGrids.
type GridStream struct {
	stream grpc.ServerStreamingClient[wrapperspb.BytesValue]
}

// Recv blocks for the next frame.
func (s *GridStream) Recv() (string, *l3grid.OccupancyGrid, error) {
	m, err := s.stream.Recv()
	if err != nil {
		return "", nil, err
	}
	return DecodeFrame(m.GetValue())
}

// StreamGrids subscribes to grids on topic; an empty topic selects all.
func (c *Client) StreamGrids(ctx context.Context, topic string, opts ...grpc.CallOption) (*GridStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], StreamGridsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(wrapperspb.String(topic)); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &GridStream{stream: x}, nil
}
