package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/operation_processor/service"
	"github.com/google/uuid"
)

var ErrMissingOperationID = errors.New("operation id is required")

type OperationValidatorImpl struct {
	journalRepo journal.Repository
	outboxRepo  outbox.Repository
	logger      *slog.Logger
}

func NewOperationValidator(journalRepo journal.Repository, outboxRepo outbox.Repository, logger *slog.Logger) service.OperationValidator {
	return &OperationValidatorImpl{
		journalRepo: journalRepo,
		outboxRepo:  outboxRepo,
		logger:      logger,
	}
}

// Validate checks the request envelope. Argument checks against ledger state
// belong to the ledger itself.
func (v *OperationValidatorImpl) Validate(ctx context.Context, request *shared.OperationRequest) error {
	logger := v.logger
	if request.CorrelationID != "" {
		logger = v.logger.With("correlation_id", request.CorrelationID)
	}

	if request.OperationID == uuid.Nil {
		logger.Error("Operation without id", "type", request.Type)
		return ErrMissingOperationID
	}

	if !request.Type.IsValid() {
		logger.Error("Unknown operation type", "operation_id", request.OperationID.String(), "type", request.Type)
		return shared.ErrInvalidOperationType
	}

	if request.Principal == "" {
		logger.Error("Operation without principal", "operation_id", request.OperationID.String())
		return shared.ErrMissingPrincipal
	}

	return nil
}

// CheckIdempotency reports whether the operation was already applied or rejected.
// A committed operation is either journaled or still waiting in the outbox.
// A new operation reusing the idempotency key of another one fails with
// shared.ErrDuplicateRequest.
func (v *OperationValidatorImpl) CheckIdempotency(ctx context.Context, request *shared.OperationRequest) (bool, error) {
	logger := v.logger
	if request.CorrelationID != "" {
		logger = v.logger.With("correlation_id", request.CorrelationID)
	}
	opID := request.OperationID

	existingEntry, err := v.journalRepo.GetByOperationID(ctx, opID)
	if err != nil && !errors.Is(err, journal.ErrEntryNotFound{}) {
		logger.Error("Failed to check journal for idempotency", "operation_id", opID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for operation %s: %w", opID.String(), err)
	}

	if existingEntry != nil {
		if existingEntry.Status.IsFinal() {
			logger.Info("Operation already processed (idempotency)", "operation_id", opID.String(), "status", existingEntry.Status)
			return true, nil
		}
		logger.Info("Operation found in journal with non-terminal status, proceeding", "operation_id", opID.String(), "status", existingEntry.Status)
	}

	pending, err := v.outboxRepo.GetByOperationID(ctx, opID)
	if err != nil {
		var notFound outbox.ErrMessageNotFound
		if !errors.As(err, &notFound) {
			logger.Error("Failed to check outbox for idempotency", "operation_id", opID.String(), "error", err)
			return false, fmt.Errorf("idempotency check failed for operation %s: %w", opID.String(), err)
		}
		return false, v.checkIdempotencyKey(ctx, logger, request)
	}

	logger.Info("Operation already committed, awaiting journal publication", "operation_id", opID.String(), "outbox_id", pending.ID)
	return true, nil
}

// checkIdempotencyKey looks for another operation carrying the request's key.
// The gateway only sees journaled keys, so two requests sent before the first
// reached the journal both get here.
func (v *OperationValidatorImpl) checkIdempotencyKey(ctx context.Context, logger *slog.Logger, request *shared.OperationRequest) error {
	key := request.IdempotencyKey
	if key == "" {
		return nil
	}
	opID := request.OperationID

	entry, err := v.journalRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		logger.Error("Failed to check journal for idempotency key", "operation_id", opID.String(), "error", err)
		return fmt.Errorf("idempotency key check failed for operation %s: %w", opID.String(), err)
	}
	if entry != nil && entry.OperationID != opID {
		logger.Warn("Idempotency key already journaled", "operation_id", opID.String(), "existing_operation_id", entry.OperationID.String())
		return shared.ErrDuplicateRequest
	}

	message, err := v.outboxRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		var notFound outbox.ErrMessageNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		logger.Error("Failed to check outbox for idempotency key", "operation_id", opID.String(), "error", err)
		return fmt.Errorf("idempotency key check failed for operation %s: %w", opID.String(), err)
	}
	if message.OperationID != opID {
		logger.Warn("Idempotency key already committed", "operation_id", opID.String(), "existing_operation_id", message.OperationID.String())
		return shared.ErrDuplicateRequest
	}
	return nil
}
