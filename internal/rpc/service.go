// Package rpc exposes the registry over gRPC. Messages are
// google.protobuf.Struct values so no generated stubs are needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "authright.v1.RegistryService"

const (
	MethodRegisterOrganization = "RegisterOrganization"
	MethodApproveOrganization  = "ApproveOrganization"
	MethodClaimAuthRight       = "ClaimAuthRight"
	MethodGetOrganization      = "GetOrganization"
	MethodGetAuthRight         = "GetAuthRight"
)

// FullMethod returns the invocation path for method, e.g. "/authright.v1.RegistryService/GetOrganization".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RegistryServiceServer is the server API for the registry service.
type RegistryServiceServer interface {
	RegisterOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClaimAuthRight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAuthRight(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(RegistryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RegistryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RegistryServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes RegistryService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: MethodRegisterOrganization,
			Handler: unary(MethodRegisterOrganization, func(s RegistryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.RegisterOrganization(ctx, in)
			}),
		},
		{
			MethodName: MethodApproveOrganization,
			Handler: unary(MethodApproveOrganization, func(s RegistryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ApproveOrganization(ctx, in)
			}),
		},
		{
			MethodName: MethodClaimAuthRight,
			Handler: unary(MethodClaimAuthRight, func(s RegistryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ClaimAuthRight(ctx, in)
			}),
		},
		{
			MethodName: MethodGetOrganization,
			Handler: unary(MethodGetOrganization, func(s RegistryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetOrganization(ctx, in)
			}),
		},
		{
			MethodName: MethodGetAuthRight,
			Handler: unary(MethodGetAuthRight, func(s RegistryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetAuthRight(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authright/v1/registry.proto",
}

// RegisterRegistryServiceServer registers srv with s.
func RegisterRegistryServiceServer(s grpc.ServiceRegistrar, srv RegistryServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
