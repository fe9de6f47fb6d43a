package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/shared"
)

type ProcessingServiceImpl struct {
	ledger          AccessLedger
	validator       OperationValidator
	failureRecorder FailureRecorder
	applyTimeout    time.Duration
	logger          *slog.Logger
}

// NewProcessingService bounds every ledger mutation by applyTimeout. A zero
// timeout leaves it unbounded.
func NewProcessingService(
	ledger AccessLedger,
	validator OperationValidator,
	failureRecorder FailureRecorder,
	applyTimeout time.Duration,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		ledger:          ledger,
		validator:       validator,
		failureRecorder: failureRecorder,
		applyTimeout:    applyTimeout,
		logger:          logger,
	}
}

// ProcessOperation applies one operation to the ledger. Business failures are
// journaled and acknowledged; a returned error means the message must be retried.
func (s *ProcessingServiceImpl) ProcessOperation(ctx context.Context, request *shared.OperationRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Processing operation",
		"operation_id", request.OperationID.String(),
		"type", request.Type,
		"principal", request.Principal,
	)

	// 1. Validate the request
	if err := s.validator.Validate(ctx, request); err != nil {
		logger.Error("Operation validation failed", "operation_id", request.OperationID.String(), "error", err)
		return s.recordFailure(ctx, logger, request, shared.FailureReasonInvalidOperation)
	}

	// 2. Check idempotency
	skip, err := s.validator.CheckIdempotency(ctx, request)
	if errors.Is(err, shared.ErrDuplicateRequest) {
		// The key stays with the operation that owns it
		duplicate := *request
		duplicate.IdempotencyKey = ""
		return s.recordFailure(ctx, logger, &duplicate, shared.FailureReasonDuplicateRequest)
	}
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	// 3. Apply to the ledger; the committer persists the change with the request in ctx.
	// Shutdown must not interrupt a withdrawal between its commits, so the
	// mutation outlives ctx up to the apply timeout.
	applyCtx, cancel := s.applyContext(ctx)
	defer cancel()
	err = s.apply(shared.WithOperation(applyCtx, request), request)
	if err == nil {
		logger.Info("Operation applied", "operation_id", request.OperationID.String())
		return nil
	}

	if errors.Is(err, access.ErrCommitFailed) {
		logger.Error("Operation could not be committed", "operation_id", request.OperationID.String(), "error", err)
		return fmt.Errorf("commit of operation %s failed: %w", request.OperationID.String(), err)
	}

	logger.Warn("Operation rejected by ledger", "operation_id", request.OperationID.String(), "error", err)
	return s.recordFailure(ctx, logger, request, FailureReasonFor(err))
}

func (s *ProcessingServiceImpl) applyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.applyTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, s.applyTimeout)
}

func (s *ProcessingServiceImpl) apply(ctx context.Context, request *shared.OperationRequest) error {
	caller := access.Principal(request.Principal)

	switch request.Type {
	case shared.OperationTypeRegisterChannel:
		_, err := s.ledger.RegisterChannel(ctx, caller, request.ChannelName, request.Cost)
		return err
	case shared.OperationTypeJoinChannel:
		_, err := s.ledger.JoinChannel(ctx, caller, access.ChannelID(request.ChannelID), request.Payment)
		return err
	case shared.OperationTypeWithdraw:
		_, err := s.ledger.Withdraw(ctx, caller)
		return err
	default:
		return shared.ErrInvalidOperationType
	}
}

// recordFailure journals the failure. The message is retried when the journal
// write fails, which is safe since a rejected operation changes no state.
func (s *ProcessingServiceImpl) recordFailure(ctx context.Context, logger *slog.Logger, request *shared.OperationRequest, reason shared.FailureReason) error {
	if err := s.failureRecorder.RecordFailure(ctx, request, string(reason)); err != nil {
		logger.Error("Failed to record operation failure", "operation_id", request.OperationID.String(), "reason", reason, "error", err)
		return fmt.Errorf("failed to record failure of operation %s: %w", request.OperationID.String(), err)
	}
	return nil
}

// FailureReasonFor maps a ledger error to the reason stored in the journal
func FailureReasonFor(err error) shared.FailureReason {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return shared.FailureReasonUnauthorized
	case errors.Is(err, access.ErrNotFound):
		return shared.FailureReasonChannelNotFound
	case errors.Is(err, access.ErrInsufficientPayment):
		return shared.FailureReasonInsufficientPayment
	case errors.Is(err, access.ErrInvalidArgument):
		return shared.FailureReasonInvalidArgument
	case errors.Is(err, access.ErrTransferFailed):
		return shared.FailureReasonTransferFailed
	case errors.Is(err, access.ErrCommitFailed):
		return shared.FailureReasonCommitFailed
	case errors.Is(err, shared.ErrInvalidOperationType):
		return shared.FailureReasonInvalidOperation
	case errors.Is(err, shared.ErrDuplicateRequest):
		return shared.FailureReasonDuplicateRequest
	default:
		return shared.FailureReasonUnknownError
	}
}
