/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intakedesk/apiserver/config"
	"github.com/intakedesk/apiserver/internal/events"
	"github.com/intakedesk/apiserver/internal/mq"
	"github.com/intakedesk/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// notifyCmd consumes lifecycle events and logs them. It is the hook where
// owner notifications (email, chat) are sent from.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consume profile lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := server.NewLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND must be rabbitmq or pubsub")
		}
		defer queue.Close()

		logger.Info("consuming events", "backend", queue.Name(), "channel", cfg.EventsChannel)
		err = queue.Subscribe(ctx, cfg.EventsChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				// Undecodable payloads would be redelivered forever.
				logger.ErrorContext(ctx, "drop malformed event", "message_id", msg.ID, "error", err)
				return nil
			}
			logger.InfoContext(ctx, "profile event",
				"type", event.Type,
				"profile_id", event.ProfileID,
				"owner_id", event.OwnerID,
				"actor_id", event.ActorID,
				"from", event.FromStatus,
				"to", event.ToStatus,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", cfg.EventsChannel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
