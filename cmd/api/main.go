package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docregistry/internal/bootstrap"
	"docregistry/internal/config"
	handlers "docregistry/internal/http/handler"
	"docregistry/internal/http/middleware"
	"docregistry/internal/logging"
	"docregistry/internal/otel"
	"docregistry/internal/service"
)

// multipartOverhead is the body allowance on top of the file size limit.
const multipartOverhead = 1 << 20

// @title Document Registry API
// @version 1.0
// @BasePath /
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	log := logging.New(os.Stdout, logging.ParseLevel(cfg.Log.Level), cfg.Log.Location())
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	backends, err := bootstrap.Open(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer backends.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := service.NewMetrics(reg)
	if err != nil {
		return err
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return err
	}

	docSvc := service.NewDocumentService(service.Options{
		Registry:        backends.Registry,
		Store:           backends.Store,
		Journal:         backends.Journal,
		Logger:          log,
		Metrics:         metrics,
		MaxFileSize:     cfg.Registration.MaxFileSize,
		ConfirmTimeout:  cfg.Registration.ConfirmTimeout,
		ListParallelism: cfg.Registration.ListParallelism,
	})

	if backends.JournalEnabled() {
		reconciler := service.NewReconciler(service.ReconcilerOptions{
			Registry:      backends.Registry,
			Store:         backends.Store,
			Journal:       backends.Journal,
			Logger:        log,
			Grace:         cfg.Registration.ConfirmTimeout,
			OrphanAfter:   cfg.Reconcile.OrphanAfter,
			DeleteOrphans: cfg.Reconcile.DeleteOrphans,
			BatchSize:     cfg.Reconcile.BatchSize,
		})
		cancel := reconciler.Start(ctx, cfg.Reconcile.Interval)
		defer cancel()
	}

	app := fiber.New(fiber.Config{
		AppName:               "docregistry",
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Registration.MaxFileSize) + multipartOverhead,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	// RequestID runs after otelfiber so the request id rides on the traced user context.
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())
	app.Use(middleware.CORS(cfg.CORSOrigins))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(app, docSvc)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", ":"+cfg.Port), slog.String("blob_backend", cfg.BlobBackend))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// In-flight uploads may be waiting for confirmation.
	if err := app.ShutdownWithTimeout(cfg.Registration.ConfirmTimeout + 5*time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
