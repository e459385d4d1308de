package visualiser

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Fully qualified method names of the costmap service.
const (
	ServiceName       = "costmap.v1.CostmapService"
	LatestGridMethod  = "/" + ServiceName + "/LatestGrid"
	StreamGridsMethod = "/" + ServiceName + "/StreamGrids"
)

// CostmapServiceServer serves encoded grid frames. Requests carry a topic
// name (empty selects every topic for streams); responses carry a frame as
// produced by EncodeFrame.
type CostmapServiceServer interface {
	LatestGrid(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	StreamGrids(*wrapperspb.StringValue, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// RegisterCostmapServiceServer registers srv on s.
func RegisterCostmapServiceServer(s grpc.ServiceRegistrar, srv CostmapServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CostmapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LatestGrid", Handler: latestGridHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamGrids", Handler: streamGridsHandler, ServerStreams: true},
	},
	Metadata: "costmap/v1/costmap.proto",
}

func latestGridHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CostmapServiceServer).LatestGrid(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LatestGridMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CostmapServiceServer).LatestGrid(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func streamGridsHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CostmapServiceServer).StreamGrids(in, &grpc.GenericServerStream[wrapperspb.StringValue, wrapperspb.BytesValue]{ServerStream: stream})
}
