package cli

import (
	"fmt"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/internal/domain"
	"github.com/spf13/cobra"
)

func newSlotCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage bookable slots",
	}
	cmd.AddCommand(newSlotPublishCmd(opts))
	cmd.AddCommand(newSlotRemoveCmd(opts))
	cmd.AddCommand(newSlotQueueCmd(opts))
	return cmd
}

type slotFlags struct {
	id        string
	venueID   string
	venueName string
	startsAt  string
	partyMin  int
	partyMax  int
	tier      string
}

func (f *slotFlags) toDomain() (*domain.Slot, error) {
	startsAt, err := time.Parse(time.RFC3339, f.startsAt)
	if err != nil {
		return nil, fmt.Errorf("--starts-at must be RFC3339: %w", err)
	}
	return &domain.Slot{
		ID:        f.id,
		VenueID:   f.venueID,
		VenueName: f.venueName,
		StartsAt:  startsAt,
		PartyMin:  f.partyMin,
		PartyMax:  f.partyMax,
		Tier:      domain.Tier(f.tier),
	}, nil
}

func newSlotPublishCmd(opts *options) *cobra.Command {
	f := &slotFlags{}

	c := &cobra.Command{
		Use:   "publish",
		Short: "Publish a new available slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := f.toDomain()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			created, err := container.ReservationService.PublishSlot(ctx, slot)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "published slot %s (%s tier, party %d-%d, starts %s)\n",
				created.ID, created.Tier, created.PartyMin, created.PartyMax, created.StartsAt.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().StringVar(&f.id, "id", "", "slot id (generated when empty)")
	c.Flags().StringVar(&f.venueID, "venue", "", "venue id")
	c.Flags().StringVar(&f.venueName, "venue-name", "", "venue display name")
	c.Flags().StringVar(&f.startsAt, "starts-at", "", "start time, RFC3339")
	c.Flags().IntVar(&f.partyMin, "party-min", 1, "smallest party size")
	c.Flags().IntVar(&f.partyMax, "party-max", 2, "largest party size")
	c.Flags().StringVar(&f.tier, "tier", string(domain.TierStandard), "required tier: standard or elevated")
	_ = c.MarkFlagRequired("venue")
	_ = c.MarkFlagRequired("starts-at")
	return c
}

func newSlotRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slot-id>",
		Short: "Remove an available slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			container, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.ReservationService.RemoveSlot(ctx, args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "removed slot %s\n", args[0])
			return nil
		},
	}
}

func newSlotQueueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "queue <slot-id>",
		Short: "Show the waiting list of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			container, _, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			entries, err := container.ReservationService.GetQueue(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printf(cmd.OutOrStdout(), "queue for %s is empty\n", args[0])
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%3d  %-10s %s", e.Position, e.Status, e.DinerID)
				if e.HoldRemaining > 0 {
					line += fmt.Sprintf("  hold %s", e.HoldRemaining.Round(time.Second))
				}
				printf(cmd.OutOrStdout(), "%s\n", line)
			}
			return nil
		},
	}
}
