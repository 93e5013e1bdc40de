package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/service"
)

func driverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driver",
		Short: "Driver account maintenance",
	}
	cmd.AddCommand(driverSyncCmd())
	return cmd
}

func driverSyncCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sync [driver-id]",
		Short: "Refresh cached Stripe Connect status",
		Long: `Refresh the cached Stripe Connect status of one driver, or of every driver
with a connected account when --all is given.

Examples:
  pixteradm driver sync 7d3f0c1e-5b7a-4f6e-9a51-2c8f1e0b9d44
  pixteradm driver sync --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass either a driver id or --all")
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Stripe.SecretKey == "" {
				return errors.New("STRIPE_SECRET_KEY is required")
			}
			gateway := payments.NewStripeGateway(e.cfg.Stripe.SecretKey, e.cfg.Stripe.WebhookSecret)
			connect := service.NewConnectService(repository.NewProfileRepository(e.db), gateway, e.cfg.AppURL)

			ctx := cmd.Context()
			if all {
				n, err := connect.SyncAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "drivers synced: %d\n", n)
				return nil
			}

			driverID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid driver id %q: %w", args[0], err)
			}
			status, err := connect.RefreshStatus(ctx, driverID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s charges=%t payouts=%t\n",
				status.AccountID, status.Status, status.ChargesEnabled, status.PayoutsEnabled)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "sync every driver with a connected account")
	return cmd
}
