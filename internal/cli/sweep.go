package cli

import (
	"github.com/spf13/cobra"
)

func newSweepCmd(opts *options) *cobra.Command {
	var slotID string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed holds and promote the next diner in each queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if slotID != "" {
				expired, err := c.ReservationService.ExpireHold(ctx, slotID)
				if err != nil {
					return err
				}
				if expired {
					printf(cmd.OutOrStdout(), "slot %s: hold expired\n", slotID)
				} else {
					printf(cmd.OutOrStdout(), "slot %s: no lapsed hold\n", slotID)
				}
				return nil
			}

			result, err := c.ExpirySweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "scanned=%d expired=%d promoted=%d failed=%d duration=%s\n",
				result.Scanned, result.Expired, result.Promoted, result.Failed, result.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&slotID, "slot", "", "expire the hold on one slot only")
	return cmd
}
