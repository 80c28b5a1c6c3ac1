/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intakedesk/apiserver/config"
	"github.com/intakedesk/apiserver/internal/db"
	"github.com/intakedesk/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var (
	serverPort    int
	serverMigrate bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the profile intake API",
	Long: `Serves the profile intake API until SIGINT or SIGTERM.

	intake server --migrate
	STORE_BACKEND=memory STORAGE_BACKEND=memory intake server --port 9000
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cmd.Flags().Changed("port") {
			cfg.ServerPort = serverPort
		}
		if serverMigrate && cfg.StoreBackend != "memory" {
			if err := db.MigrateUp(cfg); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "listen port, overrides SERVER_PORT")
	serverCmd.Flags().BoolVar(&serverMigrate, "migrate", false, "apply pending migrations before serving")
}
