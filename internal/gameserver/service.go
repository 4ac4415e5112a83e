// Package gameserver exposes the session router over a bidirectional gRPC
// stream and provides the matching client used by the telnet frontend.
//
// Messages are google.protobuf.Struct envelopes {event, payload}, so the
// service needs no generated code: the descriptor below is registered by hand.
package gameserver

import (
	"google.golang.org/grpc"
)

// Service and method names on the wire.
const (
	ServiceName   = "gamerunner.v1.Runner"
	ConnectMethod = "/" + ServiceName + "/Connect"
)

// RunnerServer is the server API for the Runner service.
type RunnerServer interface {
	// Connect carries one participant connection for its whole life.
	Connect(stream grpc.ServerStream) error
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RunnerServer).Connect(stream)
}

// ServiceDesc describes the Runner service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RunnerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "gamerunner/v1/runner.proto",
}

// RegisterRunnerServer registers srv on s.
func RegisterRunnerServer(s grpc.ServiceRegistrar, srv RunnerServer) {
	s.RegisterService(&ServiceDesc, srv)
}
