package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/telemetry"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/httpx"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/storage/memory"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/adapters/storage/postgres"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ledger"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/warehouse-service/ports"
)

func main() {
	cfg, err := config.LoadWarehouse()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.OtelServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("warehouse service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Warehouse) error {
	shutdown, err := telemetry.SetupTracer(ctx, cfg.OtelServiceName, cfg.OtelExporterEndpoint, os.Getenv("DEPLOYMENT_ENVIRONMENT"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	var store ports.ProductStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	} else {
		slog.Warn("WAREHOUSE_DATABASE_URL not set, stock is kept in memory")
		store = memory.NewStore()
	}

	var publisher events.Publisher
	if cfg.RabbitMQURL != "" {
		b, err := broker.Dial(cfg.RabbitMQURL, cfg.OtelServiceName)
		if err != nil {
			return err
		}
		defer b.Close()
		if err := b.DeclareTopology(events.WarehouseBindings); err != nil {
			return err
		}
		publisher = b
	} else {
		slog.Warn("RABBITMQ_URL not set, events are only logged")
		publisher = broker.NewLogPublisher(cfg.OtelServiceName)
	}

	l, err := ledger.New(store, publisher, ledger.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		AlertMode:         ledger.AlertMode(cfg.LowStockAlertMode),
		HoldTTL:           cfg.HoldTTL,
		MutationCacheSize: cfg.MutationCacheSize,
	})
	if err != nil {
		return err
	}

	if cfg.SeedSampleData {
		n, err := l.SeedSampleData(ctx)
		if err != nil {
			return err
		}
		slog.Info("sample data", "inserted", n)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.NewHandler(l, cfg.LowStockThreshold)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("warehouse service HTTP running", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
