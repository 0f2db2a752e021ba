package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spacesedan/stackenrich/config"
	"github.com/spacesedan/stackenrich/internal/clients/kafka_client"
	"github.com/spacesedan/stackenrich/internal/logging"
	"github.com/spacesedan/stackenrich/internal/utils"
)

// Replays raw items, one JSON document per line on stdin, into the raw
// items topic so the consumer can enrich them.
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

	kafkaCfg := kafka_client.NewKafkaConfig(cfg)

	var producer *kafka_client.Producer
	for {
		var err error
		producer, err = kafka_client.NewProducer(kafkaCfg)
		if err == nil {
			break
		}

		slog.Warn("Kafka init failed, retrying...", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
	if err := replay(ctx, producer, kafkaCfg.Topic); err != nil {
		slog.Error("[Producer] Replay failed",
			slog.String("error", err.Error()))
		producer.Close()
		os.Exit(1)
	}
	producer.Close()
}

func replay(ctx context.Context, producer *kafka_client.Producer, topic string) error {
	buffer := utils.NewBatchBuffer[kafka_client.KeyedValue](utils.BATCH_SIZE)
	publish := func() error {
		return producer.PublishBatch(ctx, topic, buffer.GetAndClear())
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			slog.Warn("[Producer] Skipping invalid JSON line")
			continue
		}

		buffer.Add(kafka_client.KeyedValue{
			Key:   []byte(gjson.GetBytes(line, "ocean-unique-id").String()),
			Value: bytes.Clone(line),
		})
		if buffer.Full() {
			if err := publish(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("[Producer] failed to read input: %w", err)
	}

	return publish()
}
