// Package api exposes the daemon over gRPC. Requests and replies are
// google.protobuf.Struct values holding the JSON wire types of this
// package, so no generated code is needed on either side.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "msgsync.v1.Messaging"

// MessagingServer is implemented by Service.
type MessagingServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncNow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListQueued(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenDiscussion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchTranscript(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadPrevious(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseDiscussion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetForeground(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(m *structpb.Struct) error {
	return w.ServerStream.SendMsg(m)
}

type unaryCall func(MessagingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessagingServer).Watch(in, &watchServer{stream})
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the Messaging service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", MessagingServer.Status),
		unary("Submit", MessagingServer.Submit),
		unary("SyncNow", MessagingServer.SyncNow),
		unary("SyncAll", MessagingServer.SyncAll),
		unary("ListQueued", MessagingServer.ListQueued),
		unary("OpenDiscussion", MessagingServer.OpenDiscussion),
		unary("FetchTranscript", MessagingServer.FetchTranscript),
		unary("LoadPrevious", MessagingServer.LoadPrevious),
		unary("CloseDiscussion", MessagingServer.CloseDiscussion),
		unary("SetForeground", MessagingServer.SetForeground),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "msgsync/v1/messaging",
}

// RegisterMessagingServer registers srv on s.
func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&ServiceDesc, srv)
}
