package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spinhouse/delivery/internal/config"
	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/internal/server"
	"github.com/spinhouse/delivery/internal/storage/postgres"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "delivery",
	Short:   "Spinhouse delivery - exactly-once shipment creation for paid orders",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run delivery for one order read from a JSON file",
	RunE:  runDeliver,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the deliveries table in PostgreSQL",
	RunE:  runMigrate,
}

func init() {
	deliverCmd.Flags().StringP("order", "o", "", "path to the order JSON file (- for stdin)")
	deliverCmd.Flags().String("phone", "", "phone number to notify")
	_ = deliverCmd.MarkFlagRequired("order")

	rootCmd.AddCommand(serveCmd, deliverCmd, migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.WithoutCancel(ctx))
	}

	app, err := initApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	logger.Info("Starting Spinhouse delivery",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("storage_backend", cfg.StorageBackend),
	)

	srv := server.New(server.Config{Port: cfg.Port}, app.controller, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runDeliver(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("order")
	phone, _ := cmd.Flags().GetString("phone")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg, true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	order, err := readOrder(path)
	if err != nil {
		return err
	}

	app, err := initApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	res, err := app.controller.Run(ctx, order, delivery.RunOptions{NotifyPhone: phone})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.OK {
		return errors.New("delivery failed: " + res.Error)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("migrate only applies to the %s backend, got %q", config.StoragePostgres, cfg.StorageBackend)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.Migrate(ctx, pool)
}

func readOrder(path string) (*delivery.Order, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("opening order: %w", err)
		}
		defer f.Close()
	}

	var order delivery.Order
	if err := json.NewDecoder(f).Decode(&order); err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}
	return &order, nil
}
