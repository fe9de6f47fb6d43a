package components

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/operation_processor/service"
)

type FailureRecorderImpl struct {
	journalRepo journal.Repository
	logger      *slog.Logger
}

func NewFailureRecorder(journalRepo journal.Repository, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		journalRepo: journalRepo,
		logger:      logger,
	}
}

// RecordFailure records a rejected operation in the journal
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, request *shared.OperationRequest, failureReason string) error {
	logger := r.logger
	if request.CorrelationID != "" {
		logger = r.logger.With("correlation_id", request.CorrelationID)
	}
	opID := request.OperationID

	logger.Info("Recording failed operation", "operation_id", opID.String(), "reason", failureReason)

	existingEntry, err := r.journalRepo.GetByOperationID(ctx, opID)
	if err != nil && !errors.Is(err, journal.ErrEntryNotFound{}) {
		logger.Error("Failed to get existing journal entry for failed operation", "operation_id", opID.String(), "error", err)
	}

	if existingEntry != nil {
		if existingEntry.Status == shared.OperationStatusFailed {
			logger.Info("Journal entry already marked as FAILED", "operation_id", opID.String())
			return nil
		}
		if err := r.journalRepo.UpdateStatus(ctx, opID, shared.OperationStatusFailed, failureReason); err != nil {
			logger.Error("Failed to update journal entry to FAILED", "operation_id", opID.String(), "error", err)
			return err
		}
		logger.Info("Updated existing journal entry to FAILED", "operation_id", opID.String())
		return nil
	}

	entry := journal.NewEntry(request, shared.OperationStatusPending)
	entry.Fail(failureReason, time.Now().UTC())

	if err := r.journalRepo.Create(ctx, entry); err != nil {
		if errors.Is(err, journal.ErrDuplicateEntry{}) {
			logger.Info("FAILED journal entry already created", "operation_id", opID.String())
			return nil
		}
		logger.Error("Failed to create FAILED journal entry", "operation_id", opID.String(), "error", err)
		return err
	}
	logger.Info("Created FAILED journal entry", "operation_id", opID.String())
	return nil
}
