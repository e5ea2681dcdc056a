package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/parkactivity/internal/api"
	"example.com/parkactivity/internal/auth"
	"example.com/parkactivity/internal/config"
	"example.com/parkactivity/internal/domain"
	"example.com/parkactivity/internal/events"
	"example.com/parkactivity/internal/store"
	"example.com/parkactivity/internal/store/dynamo"
	"example.com/parkactivity/internal/store/memory"
	"example.com/parkactivity/internal/store/postgres"
	"example.com/parkactivity/internal/store/sqlite"
	"example.com/parkactivity/internal/telemetry"
	httptransport "example.com/parkactivity/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "park-activity-api")
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("activity api stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "park-activity-api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.EventsEnabled() {
		producer := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("event producer close failed", "error", err)
			}
		}()
		publisher = producer
		logger.Info("event publishing enabled", "topic", cfg.EventsTopic)
	}

	service := domain.NewService(st, domain.Settings{
		FiscalYearFinalMonth: cfg.FiscalYearFinalMonth,
		Location:             cfg.Location,
		Publisher:            publisher,
		Logger:               logger,
	})

	handler := api.NewHandler(service, cfg.AdminRole, logger)
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, api.NewRouter(handler, authMiddleware, logger), logger)

	return httptransport.Serve(ctx, server, cfg.ShutdownTimeout, logger)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return postgres.NewStore(pool), pool.Close, nil
	case config.BackendSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("dynamodb client: %w", err)
		}
		return dynamo.NewStore(client, cfg.DynamoDBTable), func() {}, nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}
