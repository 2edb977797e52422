// Package rpc describes the pynchy.gate.v1.Gate gRPC service.
//
// Messages travel as google.protobuf.Struct; wire.go maps them to and from
// the gate's own types, so no generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pynchy.gate.v1.Gate"

// Method names.
const (
	MethodEvaluate    = "Evaluate"
	MethodReply       = "Reply"
	MethodListPending = "ListPending"
	MethodClassify    = "Classify"
	MethodTaint       = "Taint"
	MethodEndSession  = "EndSession"
)

// GateServer is implemented by the gate server.
type GateServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reply(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPending(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Classify(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Taint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(GateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func handler(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return m(srv.(GateServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return m(srv.(GateServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc of the Gate service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServer)(nil),
	Methods: []grpc.MethodDesc{
		handler(MethodEvaluate, GateServer.Evaluate),
		handler(MethodReply, GateServer.Reply),
		handler(MethodListPending, GateServer.ListPending),
		handler(MethodClassify, GateServer.Classify),
		handler(MethodTaint, GateServer.Taint),
		handler(MethodEndSession, GateServer.EndSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pynchy/gate/v1/gate.proto",
}

// RegisterGateServer registers srv on s.
func RegisterGateServer(s grpc.ServiceRegistrar, srv GateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GateClient calls the Gate service.
type GateClient struct {
	cc grpc.ClientConnInterface
}

// NewGateClient creates a GateClient on cc.
func NewGateClient(cc grpc.ClientConnInterface) *GateClient {
	return &GateClient{cc: cc}
}

// Call invokes method with in and decodes the response struct.
func (c *GateClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
