// Package rpc exposes samlog rings over gRPC.
//
// Messages are protobuf well-known types, so the service needs no generated
// code. Requests carrying several fields use a Struct:
//
//	Tail   {ring, follow, snapshot, truncate}  -> stream BytesValue
//	Dump   StringValue ring                    -> StringValue path
//	Inject {ring, message}                     -> Int64Value bytes
//	Stats  Empty                               -> Struct {rings: {...}}
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "logring.v1.LogRing"

	tailMethod   = "/" + ServiceName + "/Tail"
	dumpMethod   = "/" + ServiceName + "/Dump"
	injectMethod = "/" + ServiceName + "/Inject"
	statsMethod  = "/" + ServiceName + "/Stats"
)

// LogRingServer is the server API for the LogRing service.
type LogRingServer interface {
	Tail(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	Dump(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Inject(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterLogRingServer registers srv on s.
func RegisterLogRingServer(s grpc.ServiceRegistrar, srv LogRingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func tailHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LogRingServer).Tail(m, &grpc.GenericServerStream[structpb.Struct, wrapperspb.BytesValue]{ServerStream: stream})
}

func dumpHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogRingServer).Dump(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: dumpMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogRingServer).Dump(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func injectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogRingServer).Inject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: injectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogRingServer).Inject(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LogRingServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LogRingServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for the LogRing service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogRingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dump", Handler: dumpHandler},
		{MethodName: "Inject", Handler: injectHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Tail", Handler: tailHandler, ServerStreams: true},
	},
}
