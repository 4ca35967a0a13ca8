package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/invoiceflow/backend/internal/infrastructure/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the API",
		Long:  "Signs an HS256 token for subject with auth.secret and auth.issuer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := auth.NewJWTService(c.cfg.Auth)
			if err != nil {
				return fmt.Errorf("auth.secret must be set to mint tokens: %w", err)
			}
			token, expiresAt, err := svc.GenerateToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
