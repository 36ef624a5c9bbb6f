// Package remote is a gRPC client for the registry service.
package remote

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"authright.org/internal/auth"
	"authright.org/internal/registry"
	"authright.org/internal/rpc"
)

const defaultTimeout = 10 * time.Second

// Client wraps a connection to RegistryService.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	timeout time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithToken sends token as the bearer credential on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(target string, dialOpts []grpc.DialOption, opts ...Option) (*Client, error) {
	if len(dialOpts) == 0 {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...), nil
}

// New wraps an existing connection. The caller keeps ownership of conn
// unless Close is called.
func New(conn *grpc.ClientConn, opts ...Option) *Client {
	c := &Client{conn: conn, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Register submits a new organization.
func (c *Client) Register(ctx context.Context, code, name []byte) (registry.Event, error) {
	return c.event(ctx, rpc.MethodRegisterOrganization, map[string]any{
		"code": string(code),
		"name": string(name),
	})
}

// Approve sets an organization's status; the token must carry the root role.
func (c *Client) Approve(ctx context.Context, code []byte, approved bool) (registry.Event, error) {
	return c.event(ctx, rpc.MethodApproveOrganization, map[string]any{
		"code":   string(code),
		"status": approved,
	})
}

// Claim records hash on behalf of orgCode.
func (c *Client) Claim(ctx context.Context, hash, description, orgCode []byte) (registry.Event, error) {
	return c.event(ctx, rpc.MethodClaimAuthRight, map[string]any{
		"hash":        string(hash),
		"description": string(description),
		"org_code":    string(orgCode),
	})
}

// Organization fetches a registered organization.
func (c *Client) Organization(ctx context.Context, code []byte) (registry.Organization, error) {
	out, err := c.invoke(ctx, rpc.MethodGetOrganization, map[string]any{"code": string(code)})
	if err != nil {
		return registry.Organization{}, err
	}
	return rpc.OrganizationFromStruct(out), nil
}

// AuthRight fetches the owner and detail recorded for hash.
func (c *Client) AuthRight(ctx context.Context, hash []byte) (string, registry.AuthDetail, error) {
	out, err := c.invoke(ctx, rpc.MethodGetAuthRight, map[string]any{"hash": string(hash)})
	if err != nil {
		return "", registry.AuthDetail{}, err
	}
	owner, detail := rpc.ClaimFromStruct(out)
	return owner, detail, nil
}

func (c *Client) event(ctx context.Context, method string, req map[string]any) (registry.Event, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return registry.Event{}, err
	}
	return rpc.EventFromStruct(out)
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), rpc.FullMethod(method), in, out); err != nil {
		return nil, mapRegistryError(err)
	}
	return out, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	token := c.token
	if token == "" {
		token, _ = auth.TokenFromContext(ctx)
	}
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, rpc.AuthorizationKey, "Bearer "+token)
}

// mapRegistryError turns gRPC statuses back into the registry sentinels.
func mapRegistryError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.AlreadyExists:
		if st.Message() == registry.ErrClaimAlreadyExists.Error() {
			return registry.ErrClaimAlreadyExists
		}
		return registry.ErrOrganizationAlreadyExists
	case codes.NotFound:
		if st.Message() == registry.ErrClaimNotFound.Error() {
			return registry.ErrClaimNotFound
		}
		return registry.ErrOrganizationNotFound
	case codes.FailedPrecondition:
		return registry.ErrOrganizationNotApproved
	case codes.PermissionDenied:
		return auth.ErrBadOrigin
	case codes.Unauthenticated:
		return auth.ErrInvalidToken
	}
	return err
}
