package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"authright.org/internal/auth"
	"authright.org/internal/chain"
	"authright.org/internal/registry"
	"authright.org/internal/rpc"
)

const bufSize = 1024 * 1024

type harness struct {
	conn   *grpc.ClientConn
	tokens *auth.Tokens
	blocks *chain.Counter
}

func startRegistry(t *testing.T) *harness {
	t.Helper()

	tokens := auth.NewTokens("rpc-secret")
	blocks := chain.NewCounter(5)
	reg := registry.New(registry.NewMemoryStore(), blocks)
	server, hs := rpc.NewGRPCServer(rpc.NewServer(reg), tokens)

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		hs.Shutdown()
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return &harness{conn: conn, tokens: tokens, blocks: blocks}
}

func (h *harness) client(t *testing.T, account string, roles ...string) *Client {
	t.Helper()
	token, _, err := h.tokens.Generate(account, roles, time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return New(h.conn, WithToken(token), WithTimeout(2*time.Second))
}

func TestRemoteScenario(t *testing.T) {
	h := startRegistry(t)
	ctx := context.Background()
	alice := h.client(t, "alice")
	bob := h.client(t, "bob")
	root := h.client(t, "root", auth.RoleRoot)

	evt, err := alice.Register(ctx, []byte("ORG1"), []byte("Acme"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if evt.Kind != registry.EventOrganizationRegistered || evt.Account != "alice" || evt.Code.String() != "ORG1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.ID == "" || evt.At.IsZero() {
		t.Fatalf("event id/time missing: %+v", evt)
	}

	if _, err := alice.Register(ctx, []byte("ORG1"), []byte("Other")); !errors.Is(err, registry.ErrOrganizationAlreadyExists) {
		t.Fatalf("expected ErrOrganizationAlreadyExists, got %v", err)
	}
	if _, err := bob.Claim(ctx, []byte("H1"), []byte("d"), []byte("ORG1")); !errors.Is(err, registry.ErrOrganizationNotApproved) {
		t.Fatalf("expected ErrOrganizationNotApproved, got %v", err)
	}
	if _, err := alice.Approve(ctx, []byte("ORG1"), true); !errors.Is(err, auth.ErrBadOrigin) {
		t.Fatalf("expected ErrBadOrigin, got %v", err)
	}
	if _, err := root.Approve(ctx, []byte("ORG1"), true); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	org, err := bob.Organization(ctx, []byte("ORG1"))
	if err != nil {
		t.Fatalf("Organization: %v", err)
	}
	if !org.Status || org.Name.String() != "Acme" {
		t.Fatalf("unexpected organization: %+v", org)
	}

	evt, err = bob.Claim(ctx, []byte("H1"), []byte("d"), []byte("ORG1"))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if evt.Block != 5 || evt.Hash.String() != "H1" {
		t.Fatalf("unexpected claim event: %+v", evt)
	}
	if _, err := alice.Claim(ctx, []byte("H1"), nil, []byte("ORG1")); !errors.Is(err, registry.ErrClaimAlreadyExists) {
		t.Fatalf("expected ErrClaimAlreadyExists, got %v", err)
	}

	owner, detail, err := alice.AuthRight(ctx, []byte("H1"))
	if err != nil {
		t.Fatalf("AuthRight: %v", err)
	}
	if owner != "bob" || detail.AccountID != "bob" || detail.BlockNumber != 5 || detail.OrgCode.String() != "ORG1" {
		t.Fatalf("unexpected claim: %s %+v", owner, detail)
	}
}

func TestRemoteNotFound(t *testing.T) {
	h := startRegistry(t)
	ctx := context.Background()
	c := h.client(t, "alice")

	if _, err := c.Organization(ctx, []byte("NOPE")); !errors.Is(err, registry.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
	if _, _, err := c.AuthRight(ctx, []byte("NOPE")); !errors.Is(err, registry.ErrClaimNotFound) {
		t.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	if _, err := c.Claim(ctx, []byte("H"), nil, []byte("NOPE")); !errors.Is(err, registry.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestRemoteRequiresToken(t *testing.T) {
	h := startRegistry(t)
	anonymous := New(h.conn)
	if _, err := anonymous.Register(context.Background(), []byte("ORG1"), nil); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	foreign, _, err := auth.NewTokens("other").Generate("alice", nil, time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := New(h.conn, WithToken(foreign)).Register(context.Background(), []byte("ORG1"), nil); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenFromContext(t *testing.T) {
	h := startRegistry(t)
	token, _, err := h.tokens.Generate("carol", nil, time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ctx := auth.ContextWithToken(context.Background(), token)
	evt, err := New(h.conn).Register(ctx, []byte("ORG9"), []byte("Nine"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if evt.Account != "carol" {
		t.Fatalf("unexpected account %q", evt.Account)
	}
}

func TestMapRegistryError(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{status.Error(codes.AlreadyExists, registry.ErrClaimAlreadyExists.Error()), registry.ErrClaimAlreadyExists},
		{status.Error(codes.AlreadyExists, registry.ErrOrganizationAlreadyExists.Error()), registry.ErrOrganizationAlreadyExists},
		{status.Error(codes.NotFound, registry.ErrClaimNotFound.Error()), registry.ErrClaimNotFound},
		{status.Error(codes.NotFound, registry.ErrOrganizationNotFound.Error()), registry.ErrOrganizationNotFound},
		{status.Error(codes.FailedPrecondition, "x"), registry.ErrOrganizationNotApproved},
		{status.Error(codes.PermissionDenied, "x"), auth.ErrBadOrigin},
	}
	for _, tc := range cases {
		if got := mapRegistryError(tc.in); !errors.Is(got, tc.want) {
			t.Fatalf("map %v: got %v, want %v", tc.in, got, tc.want)
		}
	}
	internal := status.Error(codes.Internal, "boom")
	if got := mapRegistryError(internal); got != internal {
		t.Fatalf("unexpected mapping for internal: %v", got)
	}
}
