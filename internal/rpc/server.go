package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"authright.org/internal/auth"
	"authright.org/internal/obs"
	"authright.org/internal/registry"
)

// AuthorizationKey carries the bearer token in request metadata.
const AuthorizationKey = "authorization"

// Server implements RegistryServiceServer over a Registry.
type Server struct {
	reg *registry.Registry
}

var _ RegistryServiceServer = (*Server)(nil)

func NewServer(reg *registry.Registry) *Server {
	return &Server{reg: reg}
}

// NewGRPCServer builds a grpc.Server carrying the registry service and the
// standard health service, both reported SERVING.
func NewGRPCServer(svc *Server, tokens *auth.Tokens, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(), AuthInterceptor(tokens)))
	s := grpc.NewServer(opts...)
	RegisterRegistryServiceServer(s, svc)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, hs
}

func (s *Server) RegisterOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	origin, err := signedOrigin(ctx)
	if err != nil {
		return nil, err
	}
	code := String(in, "code")
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}
	evt, err := s.reg.Register(ctx, origin, []byte(code), []byte(String(in, "name")))
	if err != nil {
		return nil, toStatus(err)
	}
	return EventStruct(evt)
}

func (s *Server) ApproveOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	origin, err := signedOrigin(ctx)
	if err != nil {
		return nil, err
	}
	code := String(in, "code")
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}
	approved, ok := Bool(in, "status")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}
	evt, err := s.reg.Approve(ctx, origin, []byte(code), approved)
	if err != nil {
		return nil, toStatus(err)
	}
	return EventStruct(evt)
}

func (s *Server) ClaimAuthRight(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	origin, err := signedOrigin(ctx)
	if err != nil {
		return nil, err
	}
	hash, orgCode := String(in, "hash"), String(in, "org_code")
	switch {
	case hash == "":
		return nil, status.Error(codes.InvalidArgument, "hash is required")
	case orgCode == "":
		return nil, status.Error(codes.InvalidArgument, "org_code is required")
	}
	evt, err := s.reg.Claim(ctx, origin, []byte(hash), []byte(String(in, "description")), []byte(orgCode))
	if err != nil {
		return nil, toStatus(err)
	}
	return EventStruct(evt)
}

func (s *Server) GetOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	org, err := s.reg.Organization(ctx, []byte(String(in, "code")))
	if err != nil {
		return nil, toStatus(err)
	}
	return OrganizationStruct(org)
}

func (s *Server) GetAuthRight(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	hash := []byte(String(in, "hash"))
	owner, err := s.reg.AuthRight(ctx, hash)
	if err != nil {
		return nil, toStatus(err)
	}
	detail, err := s.reg.AuthDetail(ctx, hash)
	if err != nil {
		return nil, toStatus(err)
	}
	return ClaimStruct(hash, owner, detail)
}

func signedOrigin(ctx context.Context) (auth.Origin, error) {
	origin := auth.OriginFromContext(ctx)
	if origin.Account == "" {
		return auth.Origin{}, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	return origin, nil
}

// toStatus maps registry errors onto gRPC codes. The message is the
// sentinel's text so clients can map it back.
func toStatus(err error) error {
	switch {
	case errors.Is(err, registry.ErrOrganizationAlreadyExists):
		return status.Error(codes.AlreadyExists, registry.ErrOrganizationAlreadyExists.Error())
	case errors.Is(err, registry.ErrClaimAlreadyExists):
		return status.Error(codes.AlreadyExists, registry.ErrClaimAlreadyExists.Error())
	case errors.Is(err, registry.ErrOrganizationNotFound):
		return status.Error(codes.NotFound, registry.ErrOrganizationNotFound.Error())
	case errors.Is(err, registry.ErrClaimNotFound):
		return status.Error(codes.NotFound, registry.ErrClaimNotFound.Error())
	case errors.Is(err, registry.ErrOrganizationNotApproved):
		return status.Error(codes.FailedPrecondition, registry.ErrOrganizationNotApproved.Error())
	case errors.Is(err, auth.ErrBadOrigin):
		return status.Error(codes.PermissionDenied, auth.ErrBadOrigin.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// AuthInterceptor verifies the bearer token in metadata, when present, and
// stores the signed account in the context.
func AuthInterceptor(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(AuthorizationKey)
		if len(values) == 0 {
			return handler(ctx, req)
		}
		raw := strings.TrimSpace(values[0])
		if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization scheme")
		}
		if !tokens.Enabled() {
			return nil, status.Error(codes.Unauthenticated, "token authentication disabled")
		}
		token := strings.TrimSpace(raw[7:])
		claims, err := tokens.Parse(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		ctx = auth.ContextWithClaims(ctx, claims)
		ctx = auth.ContextWithToken(ctx, token)
		return handler(ctx, req)
	}
}

// LoggingInterceptor writes one structured line per unary call.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		obs.Logger().Info().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("rpc_complete")
		return resp, err
	}
}
