// Package kafka wraps segmentio/kafka-go for the two streams the lookup
// service touches: lookup events it publishes for analytics, and index
// reload notices it consumes to drop cached results.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
)

// MessageHandler processes one message value. An error skips the message.
type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	handle  MessageHandler
	commit  bool
	backoff time.Duration
	logger  *slog.Logger
}

type ConsumerOption func(*kafka.ReaderConfig)

// Broadcast reads partition 0 outside any consumer group so every replica
// receives every message. Nothing is committed.
func Broadcast() ConsumerOption {
	return func(rc *kafka.ReaderConfig) {
		rc.GroupID = ""
		rc.Partition = 0
	}
}

// NewConsumer joins cfg.ConsumerGroup on topic unless an option says
// otherwise. Either way it starts from the newest offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handle MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	c := &Consumer{
		reader:  kafka.NewReader(rc),
		handle:  handle,
		commit:  rc.GroupID != "",
		backoff: time.Second,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
	if !c.commit {
		if err := c.reader.SetOffset(kafka.LastOffset); err != nil {
			c.logger.Warn("cannot seek to newest offset", "error", err)
		}
	}
	return c
}

// Start consumes until ctx is cancelled and then closes the reader. Fetch
// errors back off before retrying, up to 30s between attempts.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consuming", "group", c.commit)
	wait := c.backoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		case err != nil:
			c.logger.Error("fetch failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			wait = min(wait*2, 30*time.Second)
			continue
		}
		wait = c.backoff
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	if err := c.handle(ctx, msg.Key, msg.Value); err != nil {
		c.logger.Warn("message skipped", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
	if !c.commit {
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("commit failed", "offset", msg.Offset, "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
