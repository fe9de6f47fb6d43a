package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/operation_processor/service"
	"github.com/channel-access-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// OperationEventHandler handles incoming operation request messages from Kafka
type OperationEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewOperationEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *OperationEventHandler {
	return &OperationEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage processes Kafka messages. A returned error makes the consumer
// retry the same message.
func (h *OperationEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.OperationRequest
	if err := json.Unmarshal(value, &request); err != nil {
		return h.deadLetter(ctx, key, value, "failed to unmarshal operation request", err)
	}
	if request.OperationID == uuid.Nil {
		return h.deadLetter(ctx, key, value, "operation request without id", nil)
	}

	logger := h.logger
	if request.CorrelationID != "" {
		logger = h.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Received operation request for processing",
		"operation_id", request.OperationID.String(),
		"type", request.Type,
		"principal", request.Principal,
	)

	if err := h.processingService.ProcessOperation(ctx, &request); err != nil {
		logger.Error("Failed to process operation",
			"operation_id", request.OperationID.String(),
			"error", err,
		)
		return fmt.Errorf("processing operation %s failed: %w", request.OperationID.String(), err)
	}

	logger.Info("Successfully processed operation", "operation_id", request.OperationID.String())
	return nil
}

// deadLetter parks an unprocessable message. When no DLQ is available the
// error is returned so the message is not lost.
func (h *OperationEventHandler) deadLetter(ctx context.Context, key, value []byte, reason string, cause error) error {
	if cause != nil {
		reason = fmt.Sprintf("%s: %s", reason, cause.Error())
	}
	h.logger.Error("Unprocessable operation message", "reason", reason, "message_key", string(key))

	if h.producer != nil {
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"message_key", string(key),
			)
		} else {
			h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key))
			return nil
		}
	}

	if cause != nil {
		return fmt.Errorf("%s: %w", reason, cause)
	}
	return fmt.Errorf("%s", reason)
}
