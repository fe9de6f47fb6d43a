package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// KafkaConsumer implements Consumer using Kafka. Messages are handled one at a
// time and a failed message is retried until it succeeds, so the partition
// order is the processing order.
type KafkaConsumer struct {
	reader     KafkaReader
	logger     *slog.Logger
	retryDelay time.Duration
	maxDelay   time.Duration
	done       chan struct{}
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := kafka.FirstOffset
	if cfg.StartOffset == kafka.LastOffset {
		startOffset = kafka.LastOffset
	}

	return newKafkaConsumer(logger, kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.OperationTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset,
	}))
}

func newKafkaConsumer(logger *slog.Logger, reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		logger:     logger,
		retryDelay: initialRetryDelay,
		maxDelay:   maxRetryDelay,
		done:       make(chan struct{}),
	}
}

// Subscribe starts consuming in the background until ctx is canceled
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic",
		"topic", topic,
		"group_id", groupID,
	)

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Context canceled, stopping consumer", "topic", topic, "group_id", groupID)
					return
				}
				c.logger.Error("Failed to fetch message from Kafka",
					"topic", topic,
					"group_id", groupID,
					"error", err,
				)
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			c.logger.Debug("Received message from Kafka",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
			)

			if !c.handleUntilDone(ctx, msg, handler) {
				return
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Failed to commit message after successful processing",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
		}
	}()

	return nil
}

// handleUntilDone retries handler with exponential backoff. It returns false
// when ctx ends before the message was handled.
func (c *KafkaConsumer) handleUntilDone(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}

		c.logger.Error("Failed to process message, retrying",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		if !sleepCtx(ctx, delay) {
			return false
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Done is closed once the consume loop has exited
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
