// Команда pixteradm - операционные задачи Pixter: миграции, чистка кодов и сессий,
// синхронизация статусов Stripe Connect.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/pixter/pixter-backend/internal/config"
	"github.com/pixter/pixter-backend/internal/db"
	"github.com/pixter/pixter-backend/internal/logger"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pixteradm",
		Short:         "Pixter - operator tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(codesCmd())
	rootCmd.AddCommand(driverCmd())
	return rootCmd
}

// env - общее окружение подкоманд.
type env struct {
	cfg *config.Config
	db  *sqlx.DB
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := "info"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger.Init(level)
	logger.SetTextFormatter()

	conn, err := db.NewPostgres(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: conn}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		logger.Log.WithError(err).Warn("pixteradm: ошибка закрытия базы")
	}
}
