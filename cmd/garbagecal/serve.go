package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/garbagecal/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/garbagecal/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/garbagecal/internal/adapter/mqtt"
	"github.com/couchcryptid/garbagecal/internal/notify"
	"github.com/couchcryptid/garbagecal/internal/prefs"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresher, reminders and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return serve(a)
		},
	}
}

func serve(a *app) error {
	cfg, logger := a.cfg, a.logger

	// Calendar change events are feature-flagged via KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		a.refresher.WithPublisher(publisher)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	var (
		notifier notify.Notifier = notify.NewLogNotifier(logger)
		channel                  = "log"
	)
	if cfg.MQTTEnabled() {
		notifier = mqttadapter.NewNotifier(cfg, logger)
		channel = "mqtt"
		logger.Info("mqtt reminders enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
	}
	reminder := notify.NewReminder(a.collections, notifier, channel, cfg.ReminderHour, cfg.ReminderLeadDays, a.clock, logger, a.metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.refresher, a.collections, a.clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresher.
	go func() {
		if err := a.refresher.Run(ctx); err != nil {
			logger.Error("refresher error", "error", err)
		}
	}()

	// Start reminders.
	go func() {
		if err := reminder.Run(ctx); err != nil {
			logger.Error("reminder error", "error", err)
		}
	}()

	// External edits asking for a refresh are picked up without a restart.
	go func() {
		err := a.prefs.Watch(ctx, func(p prefs.Prefs) {
			if !p.RefreshNeeded {
				return
			}
			if _, err := a.refresher.Refresh(ctx, false); err != nil && ctx.Err() == nil {
				logger.Warn("refresh after preferences change failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("preferences watch error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
