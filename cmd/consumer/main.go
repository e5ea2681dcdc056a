package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/parkactivity/internal/config"
	"example.com/parkactivity/internal/consumer"
	httptransport "example.com/parkactivity/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "park-activity-consumer")
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("activity consumer stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.EventsEnabled() {
		return errors.New("KAFKA_BROKERS must be set for the consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.MetricsAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: cfg.IdleTimeout,
	}, promhttp.Handler(), logger)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.EventsTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewAuditHandler(pool), consumer.WithLogger(logger))
	logger.Info("consumer started", "topic", cfg.EventsTopic, "group", cfg.ConsumerGroupID)
	if err := supervise(ctx, proc, metricsSrv, cfg.ShutdownTimeout, logger); err != nil {
		return err
	}
	logger.Info("consumer shutdown requested")
	return nil
}

type runner interface {
	Run(context.Context) error
}

// supervise runs proc next to the metrics server. When either one stops, the
// other is cancelled and the first failure is returned.
func supervise(ctx context.Context, proc runner, metricsSrv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsDone := make(chan error, 1)
	go func() { metricsDone <- httptransport.Serve(ctx, metricsSrv, shutdownTimeout, logger) }()
	procDone := make(chan error, 1)
	go func() { procDone <- proc.Run(ctx) }()

	select {
	case metricsErr := <-metricsDone:
		cancel()
		procErr := <-procDone
		if metricsErr != nil {
			return fmt.Errorf("metrics server: %w", metricsErr)
		}
		if procErr != nil && !errors.Is(procErr, context.Canceled) {
			return procErr
		}
		return nil
	case procErr := <-procDone:
		cancel()
		if metricsErr := <-metricsDone; metricsErr != nil {
			logger.Warn("metrics server stopped with error", "error", metricsErr)
		}
		if procErr != nil && !errors.Is(procErr, context.Canceled) {
			return procErr
		}
		return nil
	}
}
