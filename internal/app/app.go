// Package app wires the payment engine's dependencies and owns the server
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harborpay/payment-engine/internal/config"
	"github.com/harborpay/payment-engine/internal/event"
	"github.com/harborpay/payment-engine/internal/gateway"
	"github.com/harborpay/payment-engine/internal/gateway/mock"
	"github.com/harborpay/payment-engine/internal/gateway/rest"
	handlerhttp "github.com/harborpay/payment-engine/internal/handler/http"
	"github.com/harborpay/payment-engine/internal/ledger/postgres"
	"github.com/harborpay/payment-engine/internal/ledger/postgres/migrations"
	"github.com/harborpay/payment-engine/internal/outbox"
	"github.com/harborpay/payment-engine/internal/service"
	"github.com/harborpay/payment-engine/internal/txn"
	"github.com/harborpay/payment-engine/pkg/database"
	"github.com/harborpay/payment-engine/pkg/health"
	"github.com/harborpay/payment-engine/pkg/httpclient"
	pkgkafka "github.com/harborpay/payment-engine/pkg/kafka"
	"github.com/harborpay/payment-engine/pkg/middleware"
	"github.com/harborpay/payment-engine/pkg/tracing"
)

// App holds the wired application and its owned resources.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	producer *pkgkafka.Producer
	server   *http.Server

	shutdownTracing func(context.Context) error
}

// NewApp wires all dependencies from configuration: database pool and
// migrations, Kafka producer, outbox, coordinator, ledger store, gateway
// adapter, service, and HTTP router.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracing, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "payment-engine",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSample,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	prometheus.MustRegister(database.NewPoolStatsCollector(pool, "payment-engine"))

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)

	bus := event.NewBus(producer, logger)
	ob := outbox.New(bus, logger)
	coordinator := txn.NewCoordinator(pool, ob, logger)
	store := postgres.NewStore()

	gw, err := newGateway(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	svc := service.NewPaymentService(store, gw, coordinator, ob, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.Environment = cfg.Environment

	router := handlerhttp.NewRouter(svc, healthHandler, corsCfg, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		producer:        producer,
		server:          server,
		shutdownTracing: shutdownTracing,
	}, nil
}

// newGateway selects the gateway adapter from configuration. The mock
// adapter needs no provider settings; anything else requires a base URL.
func newGateway(cfg *config.Config, logger *slog.Logger) (gateway.Adapter, error) {
	if cfg.GatewayName == "mock" {
		return mock.NewAdapter(), nil
	}

	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("gateway %q requires GATEWAY_BASE_URL", cfg.GatewayName)
	}

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(cfg.GatewayName),
		logger,
	)

	return rest.NewAdapter(rest.Config{
		Name:    cfg.GatewayName,
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
	}, client, logger), nil
}

// Run starts the HTTP server and blocks until the context is canceled, then
// shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close failed", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown failed", slog.String("error", err.Error()))
	}

	return nil
}
