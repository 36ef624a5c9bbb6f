// Package cli implements the regctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"authright.org/internal/registry/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Token   string
	Timeout time.Duration

	// Dial opens the registry client; tests replace it.
	Dial func(opts *RootOptions) (*remote.Client, error)
}

func defaultDial(opts *RootOptions) (*remote.Client, error) {
	return remote.Dial(opts.Addr, nil, remote.WithToken(opts.Token), remote.WithTimeout(opts.Timeout))
}

// NewRootCommand creates the root command for regctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Dial: defaultDial})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "regctl",
		Short:         "Operate the authright registry",
		Long:          "regctl registers organizations, approves them and claims auth rights over the registry gRPC API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := os.Getenv("AUTHRIGHT_GRPC_TARGET")
	if addr == "" {
		addr = "localhost:9090"
	}
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", addr, "registry gRPC address")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("AUTHRIGHT_TOKEN"), "bearer token")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-call timeout")

	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newApproveCommand(opts))
	cmd.AddCommand(newClaimCommand(opts))
	cmd.AddCommand(newOrgCommand(opts))
	cmd.AddCommand(newClaimInfoCommand(opts))
	cmd.AddCommand(newHashPasswordCommand())
	cmd.AddCommand(newTokenCommand())

	return cmd
}

// withClient dials, runs fn and closes the client.
func withClient(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *remote.Client) (any, error)) error {
	client, err := opts.Dial(opts)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	defer client.Close()

	out, err := fn(cmd.Context(), client)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
