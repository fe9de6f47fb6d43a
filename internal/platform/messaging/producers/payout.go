package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// PayoutInstruction is the payout message on the wire. Consumers deduplicate
// on OperationID.
type PayoutInstruction struct {
	OperationID   string    `json:"operation_id,omitempty"`
	To            string    `json:"to"`
	Amount        uint64    `json:"amount"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PayoutProducer moves withdrawn funds out of custody by publishing a payout
// instruction. A write that is not acknowledged by all in-sync replicas is a
// failed transfer.
type PayoutProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var (
	_ access.FundTransferer = (*PayoutProducer)(nil)
	_ payout.Publisher      = (*PayoutProducer)(nil)
)

func NewPayoutProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*PayoutProducer, error) {
	if cfg.PayoutTopic == "" {
		return nil, fmt.Errorf("kafka payout topic is not configured")
	}
	if err := ensureTopic(cfg, cfg.PayoutTopic, logger); err != nil {
		return nil, fmt.Errorf("payout producer: %w", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.PayoutTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: cfg.MaxWait,
	}

	return &PayoutProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.PayoutTopic,
	}, nil
}

// Transfer publishes the payout for the operation carried in ctx and waits
// for the acknowledgement
func (p *PayoutProducer) Transfer(ctx context.Context, to access.Principal, amount uint64) error {
	instruction := &payout.Instruction{Recipient: string(to), Amount: amount}
	if req, ok := shared.OperationFromContext(ctx); ok {
		instruction = payout.NewInstruction(req, string(to), amount, time.Now())
	}
	return p.Publish(ctx, instruction)
}

// Publish sends a committed payout instruction. It is keyed by operation id,
// so a republished instruction lands on the same partition as the original.
func (p *PayoutProducer) Publish(ctx context.Context, instruction *payout.Instruction) error {
	msg := PayoutInstruction{
		To:            instruction.Recipient,
		Amount:        instruction.Amount,
		CorrelationID: instruction.CorrelationID,
		Timestamp:     time.Now().UTC(),
	}
	if instruction.OperationID != uuid.Nil {
		msg.OperationID = instruction.OperationID.String()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal payout instruction: %w", err)
	}

	key := msg.OperationID
	if key == "" {
		key = msg.To
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		p.logger.Error("Failed to publish payout instruction",
			"topic", p.topic,
			"to", msg.To,
			"amount", msg.Amount,
			"operation_id", msg.OperationID,
			"error", err,
		)
		return fmt.Errorf("failed to publish payout to %s: %w", p.topic, err)
	}

	p.logger.Info("Payout published", "topic", p.topic, "to", msg.To, "amount", msg.Amount, "operation_id", msg.OperationID)
	return nil
}

func (p *PayoutProducer) Close() error {
	p.logger.Info("Closing payout producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
