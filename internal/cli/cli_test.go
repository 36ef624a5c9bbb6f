package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"authright.org/internal/auth"
	"authright.org/internal/chain"
	"authright.org/internal/registry"
	"authright.org/internal/registry/remote"
	"authright.org/internal/rpc"
)

const testSecret = "cli-secret"

func startServer(t *testing.T) func(*RootOptions) (*remote.Client, error) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), chain.NewCounter(10))
	server, hs := rpc.NewGRPCServer(rpc.NewServer(reg), auth.NewTokens(testSecret))
	listener := bufconn.Listen(1024 * 1024)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()
	t.Cleanup(func() {
		hs.Shutdown()
		server.GracefulStop()
		_ = listener.Close()
	})

	return func(opts *RootOptions) (*remote.Client, error) {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return listener.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, err
		}
		return remote.New(conn, remote.WithToken(opts.Token), remote.WithTimeout(opts.Timeout)), nil
	}
}

func run(t *testing.T, dial func(*RootOptions) (*remote.Client, error), args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Dial: dial})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func mint(t *testing.T, account string, roles ...string) string {
	t.Helper()
	token, _, err := auth.NewTokens(testSecret).Generate(account, roles, time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return token
}

func TestCLIScenario(t *testing.T) {
	dial := startServer(t)
	alice := mint(t, "alice")
	root := mint(t, "root", auth.RoleRoot)

	out, err := run(t, dial, "register", "ORG1", "Acme", "--token", alice)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	var evt registry.Event
	if err := json.Unmarshal([]byte(out), &evt); err != nil {
		t.Fatalf("decode register output: %v\n%s", err, out)
	}
	if evt.Kind != registry.EventOrganizationRegistered || evt.Code.String() != "ORG1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := run(t, dial, "approve", "ORG1", "--token", alice); !errors.Is(err, auth.ErrBadOrigin) {
		t.Fatalf("expected ErrBadOrigin, got %v", err)
	}
	if _, err := run(t, dial, "approve", "ORG1", "--token", root); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := run(t, dial, "claim", "H1", "ORG1", "-d", "first", "--token", alice); err != nil {
		t.Fatalf("claim: %v", err)
	}

	out, err = run(t, dial, "claim-info", "H1")
	if err != nil {
		t.Fatalf("claim-info: %v", err)
	}
	var info claimInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode claim-info: %v", err)
	}
	if info.Owner != "alice" || info.Detail.BlockNumber != 10 || info.Detail.Description.String() != "first" {
		t.Fatalf("unexpected claim info: %+v", info)
	}

	if _, err := run(t, dial, "approve", "ORG1", "--suspend", "--token", root); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	out, err = run(t, dial, "org", "ORG1")
	if err != nil {
		t.Fatalf("org: %v", err)
	}
	var org registry.Organization
	if err := json.Unmarshal([]byte(out), &org); err != nil {
		t.Fatalf("decode org: %v", err)
	}
	if org.Status {
		t.Fatalf("expected suspended organization, got %+v", org)
	}
}

func TestCLIArgs(t *testing.T) {
	if _, err := run(t, nil, "register", "only-code"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestHashPassword(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{})
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("hunter2\n"))
	cmd.SetArgs([]string{"hash-password", "--cost", "4"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(buf.String())
	if err := auth.VerifyPassword(hash, "hunter2"); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, nil, "token", "root", "--roles", "root", "--secret", testSecret, "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var tok tokenOutput
	if err := json.Unmarshal([]byte(out), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	claims, err := auth.NewTokens(testSecret).Parse(tok.Token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "root" || len(claims.Roles) != 1 || claims.Roles[0] != "root" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
