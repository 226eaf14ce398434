package cli

import (
	"context"
	"fmt"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/spf13/cobra"
)

// tierWriter is implemented by the persistent profile repositories
type tierWriter interface {
	SetTier(ctx context.Context, dinerID string, tier domain.Tier) error
}

func newDinerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diner",
		Short: "Manage diner profiles",
	}
	cmd.AddCommand(newDinerSetTierCmd(opts))
	cmd.AddCommand(newDinerShowCmd(opts))
	return cmd
}

func newDinerSetTierCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <diner-id> <standard|elevated>",
		Short: "Set a diner's membership tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier := domain.Tier(args[1])
			if !tier.IsValid() {
				return domain.ErrInvalidTier
			}

			ctx := cmd.Context()
			c, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			w, ok := c.Profiles.(tierWriter)
			if !ok {
				return fmt.Errorf("profile store %T does not support tier updates", c.Profiles)
			}
			if err := w.SetTier(ctx, args[0], tier); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "diner %s is now %s\n", args[0], tier)
			return nil
		},
	}
}

func newDinerShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <diner-id>",
		Short: "Show a diner's tier and active future bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			tier, err := c.Profiles.GetTier(ctx, args[0])
			if domain.IsNotFoundError(err) {
				tier, err = domain.TierStandard, nil
			}
			if err != nil {
				return err
			}
			count, err := c.Profiles.GetActiveFutureBookingCount(ctx, args[0], timeNow())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "diner %s: tier=%s active_bookings=%d\n", args[0], tier, count)
			return nil
		},
	}
}
