/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fintra/authserver/config"
	"github.com/fintra/authserver/internal/logging"
	"github.com/fintra/authserver/internal/mq"
	"github.com/fintra/authserver/internal/notify"
	"github.com/spf13/cobra"
)

// workerCmd represents the otp-worker command
var workerCmd = &cobra.Command{
	Use:   "otp-worker",
	Short: "Consumes the delivery queues and sends emails and SMS",
	Long: `Consumes the email and SMS delivery queues and hands each message
to the terminal sender. Requires a configured message broker.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel)

		var (
			broker mq.Backend
			err    error
		)
		switch cfg.MQ.Backend {
		case config.MQBackendRabbitMQ:
			broker, err = mq.NewRabbit(cfg.MQ.RabbitMQ)
		case config.MQBackendPubSub:
			broker, err = mq.NewPubSub(cmd.Context(), cfg.MQ.PubSub)
		default:
			err = fmt.Errorf("otp-worker requires MQ_BACKEND=rabbitmq or pubsub, got %q", cfg.MQ.Backend)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start worker: %v\n", err)
			os.Exit(1)
		}
		defer broker.Close()

		worker := notify.NewWorker(broker, notify.NewLogSender(logger), cfg.MQ.EmailQueue, cfg.MQ.SMSQueue, logger)
		if err := worker.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
