package cli

import (
	"fmt"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/middleware"
	"github.com/spf13/cobra"
)

var timeNow = time.Now

func newTokenCmd(opts *options) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	c := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != middleware.RoleDiner && role != middleware.RoleOperator {
				return fmt.Errorf("--role must be %s or %s", middleware.RoleDiner, middleware.RoleOperator)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}

			tok, err := middleware.GenerateToken(cfg.JWT.Secret, args[0], role, ttl)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", tok)
			return nil
		},
	}

	c.Flags().StringVar(&role, "role", middleware.RoleDiner, "token role: diner or operator")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return c
}
