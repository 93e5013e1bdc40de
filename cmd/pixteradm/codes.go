package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/service"
	"github.com/pixter/pixter-backend/internal/sms"
)

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Verification code maintenance",
	}
	cmd.AddCommand(codesPurgeCmd())
	return cmd
}

func codesPurgeCmd() *cobra.Command {
	var keepSessions bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired verification codes and sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			codes := service.NewVerificationService(repository.NewVerificationRepository(e.db), sms.LogSender{}, nil, e.cfg.Verification)
			n, err := codes.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired codes deleted: %d\n", n)

			if keepSessions {
				return nil
			}
			auth := service.NewAuthService(nil, nil, repository.NewSessionRepository(e.db), nil, nil, nil)
			n, err = auth.PurgeExpiredSessions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired sessions deleted: %d\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepSessions, "keep-sessions", false, "do not delete expired sessions")
	return cmd
}
