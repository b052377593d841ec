package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/config"
	"github.com/franckalain/sosscan/internal/database"
	"github.com/franckalain/sosscan/internal/logging"
	"github.com/franckalain/sosscan/internal/metrics"
	"github.com/franckalain/sosscan/internal/ml"
	"github.com/franckalain/sosscan/internal/server"
	"github.com/franckalain/sosscan/internal/telemetry"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before the process exits
func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	if err := serve(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	return nil
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	// Initialize database
	db, err := database.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var reporter telemetry.Reporter = telemetry.NopReporter{}
	if cfg.Telemetry.SentryDSN != "" {
		sr, err := telemetry.NewSentryReporter(sentry.ClientOptions{
			Dsn:         cfg.Telemetry.SentryDSN,
			Environment: cfg.Telemetry.Environment,
		})
		if err != nil {
			return fmt.Errorf("failed to set up error reporting: %w", err)
		}
		defer sr.Flush(2 * time.Second)
		reporter = sr
	}

	// Initialize ML service
	model, err := ml.NewModel(cfg.ML, &http.Client{})
	if err != nil {
		return fmt.Errorf("failed to create ML model: %w", err)
	}
	if err := model.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load ML model: %w", err)
	}
	defer model.Close()

	store := capture.NewStore(cfg.ArtifactTTL())
	srv := server.New(db, ml.NewClient(model, cfg.ML.Credential(), logger), store, server.Options{
		Capture:        cfg.CaptureOptions(),
		RequestTimeout: cfg.RequestTimeout(),
		Metrics:        m,
		Gatherer:       reg,
		Reporter:       reporter,
		Logger:         logger,
		Debug:          cfg.Server.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx, cfg.Server.Port, cfg.Server.StaticDir)
}
