package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spinhouse/delivery/internal/alert"
	"github.com/spinhouse/delivery/internal/config"
	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/internal/notify"
	"github.com/spinhouse/delivery/internal/storage"
	"github.com/spinhouse/delivery/internal/telemetry"
	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/spinhouse/delivery/pkg/shipper/shiprocket"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config, development bool) (*otelzap.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggerConfig{
		Level:       cfg.LogLevel,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		Development: development,
	})
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Attributes()...)
	return shutdown, err
}

type app struct {
	controller *delivery.Controller
	close      func()
}

func initApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	notifier, err := initNotifier(cfg, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	orch := delivery.NewOrchestrator(initGateway(cfg, logger), notifier, delivery.OrchestratorConfig{
		Defaults: delivery.PayloadDefaults{
			PickupLocation:      cfg.PickupLocation,
			ChannelID:           cfg.ChannelID,
			DefaultItemWeightKG: cfg.DefaultItemWeightKG,
		},
		MaxAttempts:    cfg.GatewayMaxAttempts,
		SchedulePickup: cfg.SchedulePickup,
	}, logger, metrics)

	controller := delivery.NewController(orch, store, initAlerter(cfg, logger), delivery.ControllerConfig{
		GatewayTimeout:   cfg.GatewayTimeout,
		WaitTimeout:      cfg.WaitTimeout,
		WaitPollInterval: cfg.WaitPollInterval,
		ReservationLease: cfg.ReservationLease,
		ProcessCacheSize: cfg.ProcessCacheSize,
	}, logger, metrics)

	return &app{controller: controller, close: closeStore}, nil
}

func initGateway(cfg *config.Config, logger *otelzap.Logger) shipper.Gateway {
	if cfg.DryRun {
		logger.Info("Shiprocket dry run enabled, no shipments will be created")
	}
	return shiprocket.New(shiprocket.Config{
		Email:    cfg.ShiprocketEmail,
		Password: cfg.ShiprocketPassword,
		BaseURL:  cfg.ShiprocketBaseURL,
		Timeout:  cfg.GatewayTimeout,
		DryRun:   cfg.DryRun,
	}, logger, otel.Tracer(cfg.ServiceName))
}

func initNotifier(cfg *config.Config, logger *otelzap.Logger) (delivery.Notifier, error) {
	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.WhatsAppEnabled() {
		wa, err := notify.NewWhatsApp(notify.WhatsAppConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioWhatsAppFrom,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, wa)
		logger.Info("WhatsApp notifications enabled", zap.String("from", cfg.TwilioWhatsAppFrom))
	}
	return notifiers, nil
}

func initAlerter(cfg *config.Config, logger *otelzap.Logger) delivery.Alerter {
	if cfg.AlertFile != "" {
		return alert.NewFile(cfg.AlertFile)
	}
	return alert.NewLog(logger)
}
