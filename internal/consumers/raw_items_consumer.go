package consumers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/spacesedan/stackenrich/internal/clients/kafka_client"
	"github.com/spacesedan/stackenrich/internal/models"
	"github.com/spacesedan/stackenrich/internal/utils"
)

type messageReader interface {
	Next() (*kafka.Message, error)
}

type offsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) error
}

type itemEnricher interface {
	EnrichItems(ctx context.Context, items iter.Seq2[models.RawItem, error]) error
}

type pendingItem struct {
	item  models.RawItem
	valid bool
	msg   *kafka.Message
}

// RawItemsConsumer enriches raw items read from Kafka in batches and commits
// their offsets once the batch has been indexed. Items still buffered when
// the consumer stops are not committed and will be delivered again.
type RawItemsConsumer struct {
	reader    messageReader
	committer offsetCommitter
	enricher  itemEnricher
	buffer    *utils.BatchBuffer[pendingItem]
	interval  time.Duration
}

func NewRawItemsConsumer(reader messageReader, committer offsetCommitter, enricher itemEnricher, batchSize int) *RawItemsConsumer {
	return &RawItemsConsumer{
		reader:    reader,
		committer: committer,
		enricher:  enricher,
		buffer:    utils.NewBatchBuffer[pendingItem](batchSize),
		interval:  utils.BATCH_TIMEOUT,
	}
}

func StartRawItemsConsumer(ctx context.Context, consumer *kafka.Consumer, enricher itemEnricher, batchSize int) error {
	iterator := kafka_client.NewKafkaMessageIterator(ctx, consumer)
	committer := kafka_client.NewCommitHandler(ctx, consumer)
	return NewRawItemsConsumer(iterator, committer, enricher, batchSize).Run(ctx)
}

func (c *RawItemsConsumer) Run(ctx context.Context) error {
	slog.Info("[RawItemsConsumer] Listening for messages...")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Warn("[RawItemsConsumer] Stopping consumer...",
				slog.Int("uncommitted", c.buffer.Size()))
			return nil
		case <-ticker.C:
			if err := c.flush(ctx); err != nil {
				return err
			}
		default:
			msg, err := c.reader.Next()
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return fmt.Errorf("[RawItemsConsumer] failed to read message: %w", err)
			}
			if msg == nil {
				continue
			}

			pending := pendingItem{msg: msg}
			item, err := models.ParseRawItem(msg.Value)
			if err != nil {
				slog.Warn("[RawItemsConsumer] Skipping undecodable message",
					slog.String("offset", msg.TopicPartition.Offset.String()),
					slog.String("error", err.Error()))
			} else {
				pending.item = item
				pending.valid = true
			}
			c.buffer.Add(pending)

			if c.buffer.Full() {
				if err := c.flush(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (c *RawItemsConsumer) flush(ctx context.Context) error {
	if !c.buffer.HasData() {
		return nil
	}
	c.buffer.LogBatchProcessing("raw_items")
	batch := c.buffer.GetAndClear()

	items := make([]models.RawItem, 0, len(batch))
	for _, p := range batch {
		if p.valid {
			items = append(items, p.item)
		}
	}

	if len(items) > 0 {
		err := c.enricher.EnrichItems(ctx, models.Items(items))
		if errors.Is(err, models.ErrMissingField) {
			slog.Warn("[RawItemsConsumer] Batch contains malformed items, enriching one by one",
				slog.String("error", err.Error()))
			err = c.enrichEach(ctx, items)
		}
		if err != nil {
			return fmt.Errorf("[RawItemsConsumer] failed to enrich batch of %d items: %w", len(items), err)
		}
	}

	return c.committer.CommitOffsets(nextOffsets(batch))
}

// enrichEach indexes items individually so a malformed item does not hold
// back the rest of its batch. Items already indexed by the failed batch are
// written again under the same ids.
func (c *RawItemsConsumer) enrichEach(ctx context.Context, items []models.RawItem) error {
	for _, item := range items {
		err := c.enricher.EnrichItems(ctx, models.Items([]models.RawItem{item}))
		if errors.Is(err, models.ErrMissingField) {
			slog.Warn("[RawItemsConsumer] Dropping malformed item",
				slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// nextOffsets returns, per partition, the offset after the last message of
// the batch.
func nextOffsets(batch []pendingItem) []kafka.TopicPartition {
	type key struct {
		topic     string
		partition int32
	}
	latest := make(map[key]kafka.TopicPartition)
	for _, p := range batch {
		tp := p.msg.TopicPartition
		var topic string
		if tp.Topic != nil {
			topic = *tp.Topic
		}
		k := key{topic: topic, partition: tp.Partition}
		if cur, ok := latest[k]; !ok || tp.Offset+1 > cur.Offset {
			latest[k] = kafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition, Offset: tp.Offset + 1}
		}
	}

	offsets := make([]kafka.TopicPartition, 0, len(latest))
	for _, tp := range latest {
		offsets = append(offsets, tp)
	}
	slices.SortFunc(offsets, func(a, b kafka.TopicPartition) int {
		return cmp.Compare(a.Partition, b.Partition)
	})
	return offsets
}
