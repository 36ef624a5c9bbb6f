package cli

import (
	"context"

	"github.com/spf13/cobra"

	"authright.org/internal/registry"
	"authright.org/internal/registry/remote"
)

func newRegisterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <code> <name>",
		Short: "Register an organization (starts unapproved)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *remote.Client) (any, error) {
				return c.Register(ctx, []byte(args[0]), []byte(args[1]))
			})
		},
	}
}

func newApproveCommand(opts *RootOptions) *cobra.Command {
	var suspend bool
	cmd := &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve an organization, or suspend it with --suspend (root only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *remote.Client) (any, error) {
				return c.Approve(ctx, []byte(args[0]), !suspend)
			})
		},
	}
	cmd.Flags().BoolVar(&suspend, "suspend", false, "set status to false instead of true")
	return cmd
}

func newClaimCommand(opts *RootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "claim <hash> <org-code>",
		Short: "Claim an auth right on behalf of an approved organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *remote.Client) (any, error) {
				return c.Claim(ctx, []byte(args[0]), []byte(description), []byte(args[1]))
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "claim description")
	return cmd
}

func newOrgCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "org <code>",
		Short: "Show an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *remote.Client) (any, error) {
				return c.Organization(ctx, []byte(args[0]))
			})
		},
	}
}

type claimInfo struct {
	Hash   registry.Bytes      `json:"hash"`
	Owner  string              `json:"owner"`
	Detail registry.AuthDetail `json:"detail"`
}

func newClaimInfoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim-info <hash>",
		Short: "Show the owner and detail of a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *remote.Client) (any, error) {
				owner, detail, err := c.AuthRight(ctx, []byte(args[0]))
				if err != nil {
					return nil, err
				}
				return claimInfo{Hash: registry.Bytes(args[0]), Owner: owner, Detail: detail}, nil
			})
		},
	}
}
