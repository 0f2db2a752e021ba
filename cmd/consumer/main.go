package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/spacesedan/stackenrich/config"
	"github.com/spacesedan/stackenrich/internal/bootstrap"
	"github.com/spacesedan/stackenrich/internal/clients/kafka_client"
	"github.com/spacesedan/stackenrich/internal/consumers"
	"github.com/spacesedan/stackenrich/internal/logging"
	"github.com/spacesedan/stackenrich/internal/utils"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var services *bootstrap.Services
	for {
		var err error
		services, err = bootstrap.Build(ctx, cfg)
		if err == nil {
			break
		}

		slog.Warn("[Main] Enricher init failed, retrying...", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
	defer services.Close()

	run := func(ctx context.Context, consumer *kafka.Consumer) error {
		return consumers.StartRawItemsConsumer(ctx, consumer, services.Enricher, utils.BATCH_SIZE)
	}

	if err := kafka_client.RunConsumer(ctx, kafka_client.NewKafkaConfig(cfg), run); err != nil {
		slog.Error("[Main] Consumer stopped",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
}
