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

	sagasqlite "github.com/jcmexdev/ecommerce-fulfillment/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/broker"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/sqlitedb"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/telemetry"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/app"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/adapters/storage/sqlite"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/adapters/warehouse"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/httpx"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/infra/messaging"
)

func main() {
	cfg, err := config.LoadStorefront()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.OtelServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("storefront service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Storefront) error {
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

	db, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sagas, err := sagasqlite.New(db)
	if err != nil {
		return err
	}
	orders, err := sqlite.NewOrderRepository(db)
	if err != nil {
		return err
	}

	var kv cache.Cache
	if cfg.RedisAddr != "" {
		if kv, err = cache.NewRedisCache(cfg.RedisAddr, "storefront"); err != nil {
			return err
		}
	} else {
		slog.Warn("REDIS_ADDR not set, product cache and event de-duplication are per process")
		kv = cache.NewMemoryCache("storefront")
	}

	var (
		publisher events.Publisher
		b         *broker.Broker
	)
	if cfg.RabbitMQURL != "" {
		if b, err = broker.Dial(cfg.RabbitMQURL, cfg.OtelServiceName); err != nil {
			return err
		}
		defer b.Close()
		bindings := append(append([]events.Binding(nil), events.OrderBindings...), events.WarehouseBindings...)
		if err := b.DeclareTopology(bindings); err != nil {
			return err
		}
		publisher = b
	} else {
		slog.Warn("RABBITMQ_URL not set, events are only logged and nothing is consumed")
		publisher = broker.NewLogPublisher(cfg.OtelServiceName)
	}

	stock := warehouse.NewClient(cfg.WarehouseURL, cfg.WarehouseTimeout)
	fulfillment := app.NewFulfillment(stock, orders, sagas, publisher, app.Options{
		Mode:    app.ReservationMode(cfg.ReservationMode),
		HoldTTL: cfg.HoldTTL,
	})
	catalog := app.NewCatalog(stock, kv, cfg.ProductCacheTTL)
	reconciler := app.NewReconciler(fulfillment, sagas, cfg.ReconcileInterval, cfg.ReconcileGrace)
	view := messaging.NewStockView()
	listener := messaging.NewStockListener(catalog, view, messaging.NewCacheDeduper(kv, cfg.DedupeTTL), messaging.LogNotifier{})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.NewHandler(fulfillment, catalog, view)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("storefront service HTTP running", "addr", cfg.HTTPAddr, "reservation_mode", cfg.ReservationMode)
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
	g.Go(func() error {
		return reconciler.Run(ctx)
	})
	if b != nil {
		g.Go(func() error {
			return listener.Run(ctx, b, cfg.ConsumerPrefetch)
		})
	}
	return g.Wait()
}
