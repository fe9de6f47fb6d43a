package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidOperationType = errors.New("invalid operation type")
	ErrMissingPrincipal     = errors.New("principal is required")

	// ErrDuplicateRequest marks an operation whose idempotency key was already
	// used by another operation.
	ErrDuplicateRequest = errors.New("idempotency key already used by another operation")
)

// OperationRequest defines a Kafka message asking the processor to apply one
// ledger operation. Only the fields relevant to Type are set.
type OperationRequest struct {
	OperationID    uuid.UUID     `json:"operation_id"`
	Type           OperationType `json:"type"`
	Principal      string        `json:"principal"`
	ChannelID      uint64        `json:"channel_id,omitempty"`
	ChannelName    string        `json:"channel_name,omitempty"`
	Cost           uint64        `json:"cost,omitempty"`
	Payment        uint64        `json:"payment,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CorrelationID  string        `json:"correlation_id"`
	Timestamp      time.Time     `json:"timestamp"`
}

type operationKey struct{}

// WithOperation returns a context carrying the request being applied
func WithOperation(ctx context.Context, req *OperationRequest) context.Context {
	return context.WithValue(ctx, operationKey{}, req)
}

// OperationFromContext returns the request stored by WithOperation, if any
func OperationFromContext(ctx context.Context) (*OperationRequest, bool) {
	req, ok := ctx.Value(operationKey{}).(*OperationRequest)
	return req, ok && req != nil
}
