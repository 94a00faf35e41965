package platformsync

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "platformsync.v1.PlatformSyncService"

// Full method names.
const (
	GetAllPlatformsMethod = "/" + ServiceName + "/GetAllPlatforms"
	SubscribeEventsMethod = "/" + ServiceName + "/SubscribeEvents"
	LeaseEventsMethod     = "/" + ServiceName + "/LeaseEvents"
	AckEventMethod        = "/" + ServiceName + "/AckEvent"
)

// Server is the owner-side implementation of PlatformSyncService.
//
// Messages are well-known protobuf types so both ends share the contract
// without generated stubs; the field layout lives in messages.go.
type Server interface {
	GetAllPlatforms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SubscribeEvents(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	LeaseEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AckEvent(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterServer registers srv on registrar.
func RegisterServer(registrar grpc.ServiceRegistrar, srv Server) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes PlatformSyncService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAllPlatforms", Handler: getAllPlatformsHandler},
		{MethodName: "SubscribeEvents", Handler: subscribeEventsHandler},
		{MethodName: "LeaseEvents", Handler: leaseEventsHandler},
		{MethodName: "AckEvent", Handler: ackEventHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "platformsync/v1/platformsync.proto",
}

func getAllPlatformsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetAllPlatforms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAllPlatformsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).GetAllPlatforms(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SubscribeEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubscribeEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).SubscribeEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func leaseEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).LeaseEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LeaseEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).LeaseEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func ackEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AckEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AckEventMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).AckEvent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
