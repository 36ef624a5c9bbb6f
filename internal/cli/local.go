package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"authright.org/internal/auth"
)

func newHashPasswordCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin for AUTHRIGHT_ACCOUNTS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("read password: empty input")
			}
			hash, err := auth.HashPasswordCost(strings.TrimRight(line, "\r\n"), cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 10, "bcrypt cost")
	return cmd
}

type tokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenCommand() *cobra.Command {
	var (
		roles  []string
		ttl    time.Duration
		secret string
	)
	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Mint a bearer token locally with the shared secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTHRIGHT_AUTH_SECRET")
			}
			token, exp, err := auth.NewTokens(secret).Generate(args[0], roles, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd, tokenOutput{Token: token, ExpiresAt: exp})
		},
	}
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "roles to embed, e.g. root")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $AUTHRIGHT_AUTH_SECRET)")
	return cmd
}
