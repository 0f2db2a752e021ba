package kafka_client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

type KafkaCommitHandler struct {
	consumer *kafka.Consumer
	ctx      context.Context
}

func NewCommitHandler(ctx context.Context, consumer *kafka.Consumer) *KafkaCommitHandler {
	return &KafkaCommitHandler{
		consumer: consumer,
		ctx:      ctx,
	}
}

// CommitOffsets commits the given positions, which must already point past
// the last processed message of each partition.
func (ch *KafkaCommitHandler) CommitOffsets(offsets []kafka.TopicPartition) error {
	if ch.consumer == nil {
		return errors.New("[KafkaCommitHandler] Kafka consumer has not been initialized")
	}
	if len(offsets) == 0 {
		return nil
	}

	for i := 0; i < MAX_RETRIES; i++ {
		select {
		case <-ch.ctx.Done():
			slog.Warn("[KafkaCommitHandler] Context canceled, stopping commit")
			return ch.ctx.Err()
		default:
			_, err := ch.consumer.CommitOffsets(offsets)
			if err == nil {
				for _, tp := range offsets {
					slog.Info("[KafkaCommitHandler] Successfully committed offset",
						slog.String("partition", fmt.Sprintf("%d", tp.Partition)),
						slog.String("offset", tp.Offset.String()))
				}
				return nil
			}
			slog.Warn("[KafkaCommitHandler] Failed to commit offsets, retrying...",
				slog.Int("attempt", i+1),
				slog.Int("partitions", len(offsets)),
				slog.String("error", err.Error()))

			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrAllBrokersDown {
				slog.Error("[KafkaCommitHandler] All Kafka brokers are down. Aborting commit")
				return err
			}

			time.Sleep(RETRY_DELAY)
		}
	}

	return fmt.Errorf("[KafkaCommitHandler] Failed to commit offsets after %d retries", MAX_RETRIES)
}
