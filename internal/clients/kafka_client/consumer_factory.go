package kafka_client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// RunConsumer creates a consumer for cfg, hands it to run and closes it once
// run returns.
func RunConsumer(ctx context.Context, cfg KafkaConfig, run func(context.Context, *kafka.Consumer) error) error {
	consumer, err := NewConsumer(cfg)
	if err != nil {
		return fmt.Errorf("[ConsumerFactory] Failed to initialize Kafka consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Warn("[ConsumerFactory] Failed to close consumer",
				slog.String("error", err.Error()))
		}
	}()

	slog.Info("[ConsumerFactory] Starting consumer for topic...", slog.String("topic", cfg.Topic))
	return run(ctx, consumer)
}
