package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-prob-grid/internal/adapter/file"
	kafkaadapter "github.com/couchcryptid/storm-prob-grid/internal/adapter/kafka"
	"github.com/couchcryptid/storm-prob-grid/internal/adapter/noaa"
	"github.com/couchcryptid/storm-prob-grid/internal/config"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/observability"
	"github.com/couchcryptid/storm-prob-grid/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stages := pipeline.Stages{
		Grid: file.NewGridReader(cfg.GridInput),
		Boundary: file.NewBoundaryReader(cfg.BoundaryInput, file.Filter{
			Field:   cfg.BoundaryField,
			Include: cfg.BoundaryInclude,
			Exclude: cfg.BoundaryExclude,
		}, logger),
		Sinks: []pipeline.Sink{file.NewWriter(cfg.OutputPath, logger)},
	}
	if cfg.BordersOutputPath != "" {
		stages.Borders = file.NewWriter(cfg.BordersOutputPath, logger)
	}

	if cfg.UpstreamCheck {
		client, err := noaa.NewS3Client(ctx, cfg.AWSRegion)
		if err != nil {
			logger.Error("failed to create s3 client", "error", err)
			return 1
		}
		stages.Availability = noaa.NewChecker(client, cfg.UpstreamBucket, cfg.UpstreamTimeout, logger)
		logger.Info("upstream check enabled", "bucket", cfg.UpstreamBucket)
	}

	// Kafka goes after the file so the map front end is never behind the topic.
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		stages.Sinks = append(stages.Sinks, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic)
	}

	settings := pipeline.Settings{
		Options: pipeline.Options{Policy: cfg.Policy, Model: cfg.Model},
		Region:  cfg.Region,
	}
	p := pipeline.New(stages, settings, logger, metrics)

	_, err = p.Run(ctx, cfg.Cycle())
	pushMetrics(cfg, logger)

	switch {
	case err == nil:
		return 0
	case domain.IsDataUnavailable(err):
		return 0
	default:
		return 1
	}
}

// pushMetrics sends the run's metrics to the Pushgateway. A batch job exits
// before any scrape, so this is the only way they reach Prometheus.
func pushMetrics(cfg *config.Config, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := observability.Push(ctx, cfg.PushgatewayURL, prometheus.DefaultGatherer); err != nil {
		logger.Error("metrics push failed", "error", err)
		return
	}
	logger.Debug("metrics pushed", "url", cfg.PushgatewayURL)
}
