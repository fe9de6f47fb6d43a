package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/platform/messaging/producers"
	"github.com/google/uuid"
)

// OperationPartitionKey keys every operation message. One partition carries
// the whole ledger, so the processor sees operations in submission order.
const OperationPartitionKey = "access-ledger"

// OperationServiceImpl implements the OperationService interface
type OperationServiceImpl struct {
	journalRepo journal.Repository
	producer    producers.MessagePublisher
	logger      *slog.Logger
}

func NewOperationService(logger *slog.Logger, journalRepo journal.Repository, producer producers.MessagePublisher) OperationService {
	return &OperationServiceImpl{
		journalRepo: journalRepo,
		producer:    producer,
		logger:      logger,
	}
}

// SubmitOperation publishes request unless its idempotency key was already journaled.
func (s *OperationServiceImpl) SubmitOperation(ctx context.Context, request *shared.OperationRequest) (string, *journal.Entry, error) {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}
	idempotencyKey := request.IdempotencyKey

	if idempotencyKey != "" {
		existingEntry, err := s.journalRepo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			logger.Error("Failed to check for existing operation with idempotency key",
				"idempotency_key", idempotencyKey,
				"error", err,
			)
			return "", nil, err
		}

		if existingEntry != nil {
			logger.Info("Found existing operation with idempotency key",
				"idempotency_key", idempotencyKey,
				"operation_id", existingEntry.OperationID,
				"status", string(existingEntry.Status),
			)
			return existingEntry.OperationID.String(), existingEntry, nil
		}
	}

	if err := s.producer.Publish(ctx, OperationPartitionKey, request); err != nil {
		logger.Error("Failed to publish operation request",
			"operation_id", request.OperationID,
			"type", string(request.Type),
			"principal", request.Principal,
			"error", err,
		)
		return "", nil, err
	}

	logger.Info("Operation request published",
		"operation_id", request.OperationID,
		"type", string(request.Type),
		"principal", request.Principal,
	)

	return request.OperationID.String(), nil, nil
}

// GetOperationByID retrieves a journal entry by operation ID. Returns nil if not found
func (s *OperationServiceImpl) GetOperationByID(ctx context.Context, operationID uuid.UUID) (*journal.Entry, error) {
	res, err := s.journalRepo.GetByOperationID(ctx, operationID)
	if err != nil {
		if errors.Is(err, journal.ErrEntryNotFound{}) {
			s.logger.Info("Operation not found", "operation_id", operationID.String())
			return nil, nil
		}
		s.logger.Error("Failed to get operation by ID", "operation_id", operationID.String(), "error", err)
		return nil, err
	}
	return res, nil
}

// GetOperationsByPrincipal retrieves a page of journal entries for a principal
func (s *OperationServiceImpl) GetOperationsByPrincipal(ctx context.Context, principal string, page, perPage int) ([]*journal.Entry, int64, error) {
	offset := (page - 1) * perPage

	entries, err := s.journalRepo.ListByPrincipal(ctx, principal, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.journalRepo.CountByPrincipal(ctx, principal)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
