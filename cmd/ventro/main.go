package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	ventro "github.com/NeoOne601/Ventro"
	"github.com/NeoOne601/Ventro/internal/config"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("VENTRO_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	tenantFlag := flag.String("tenant", "", "tenant id (uuid)")
	poFlag := flag.String("po", "", "purchase order document id")
	grnFlag := flag.String("grn", "", "goods receipt note document id")
	invoiceFlag := flag.String("invoice", "", "supplier invoice document id")
	flag.Parse()

	if *poFlag == "" || *grnFlag == "" || *invoiceFlag == "" {
		flag.Usage()
		return fmt.Errorf("po, grn and invoice document ids are required")
	}
	tenantID, err := uuid.Parse(*tenantFlag)
	if err != nil {
		return fmt.Errorf("parse tenant id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("ventro starting", "version", version)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	app, err := ventro.New(
		ventro.WithConfig(cfg),
		ventro.WithLogger(logger),
		ventro.WithVersion(version),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	sessionID := uuid.New()

	// Mirror progress events to the log while the run is in flight.
	sub := app.Subscribe(sessionID)
	go func() {
		for event := range sub.Events() {
			if event.Type == model.EventPing {
				continue
			}
			logger.Info("progress", "type", event.Type, "stage", event.Stage)
		}
	}()

	result, err := app.Run(ctx, ventro.RunRequest{
		SessionID: sessionID,
		TenantID:  tenantID,
		POID:      *poFlag,
		GRNID:     *grnFlag,
		InvoiceID: *invoiceFlag,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"session_id": result.SessionID,
		"status":     result.Status,
		"verdict":    result.Verdict,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
