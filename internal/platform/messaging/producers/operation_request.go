package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// OperationRequestProducer publishes operation requests from the API gateway
type OperationRequestProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewOperationRequestProducer ensures the operation topic exists and opens a writer.
// Writes are synchronous and acknowledged by all in-sync replicas, so a request
// is only accepted once it cannot be lost.
func NewOperationRequestProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*OperationRequestProducer, error) {
	if cfg.OperationTopic == "" {
		return nil, fmt.Errorf("kafka operation topic is not configured")
	}
	if err := ensureTopic(cfg, cfg.OperationTopic, logger); err != nil {
		return nil, fmt.Errorf("operation request producer: %w", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.OperationTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &OperationRequestProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.OperationTopic,
	}, nil
}

// Publish JSON-encodes value and writes it under key
func (p *OperationRequestProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal operation request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish operation request",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish operation request to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published operation request", "topic", p.topic, "key", key)
	return nil
}

func (p *OperationRequestProducer) Close() error {
	p.logger.Info("Closing operation request producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
