package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "orrery.v1.OrreryService"

const (
	getSnapshotMethod  = "/" + ServiceName + "/GetSnapshot"
	describeBodyMethod = "/" + ServiceName + "/DescribeBody"
	controlTimeMethod  = "/" + ServiceName + "/ControlTime"
)

// OrreryServer is the server API for the orrery service. Messages are
// protobuf well-known types so no generated code is needed.
type OrreryServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DescribeBody(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ControlTime(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterOrreryServer registers srv on s.
func RegisterOrreryServer(s grpc.ServiceRegistrar, srv OrreryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes orrery.v1.OrreryService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrreryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "DescribeBody", Handler: describeBodyHandler},
		{MethodName: "ControlTime", Handler: controlTimeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orrery/v1/orrery.proto",
}

func getSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrreryServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrreryServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func describeBodyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrreryServer).DescribeBody(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeBodyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrreryServer).DescribeBody(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func controlTimeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrreryServer).ControlTime(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: controlTimeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrreryServer).ControlTime(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// OrreryClient is the client API for orrery.v1.OrreryService.
type OrreryClient struct {
	cc grpc.ClientConnInterface
}

// NewOrreryClient wraps a connection.
func NewOrreryClient(cc grpc.ClientConnInterface) *OrreryClient {
	return &OrreryClient{cc: cc}
}

func (c *OrreryClient) GetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrreryClient) DescribeBody(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, describeBodyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrreryClient) ControlTime(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, controlTimeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
