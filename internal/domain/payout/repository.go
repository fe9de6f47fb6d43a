package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository persists payout instructions
type Repository interface {
	Create(ctx context.Context, instruction *Instruction) error
	// GetPending returns pending instructions created before cutoff, oldest first
	GetPending(ctx context.Context, cutoff time.Time, limit int) ([]*Instruction, error)
	// UpdateStatus moves the instruction of operationID from one status to
	// another and returns ErrNotInStatus when it is not in from.
	UpdateStatus(ctx context.Context, operationID uuid.UUID, from, to Status) error
	IncrementAttempts(ctx context.Context, operationID uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// Publisher hands an instruction to the settlement side
type Publisher interface {
	Publish(ctx context.Context, instruction *Instruction) error
}

// ErrNotInStatus indicates that no instruction for the operation is in the expected status
type ErrNotInStatus struct {
	OperationID uuid.UUID
	Status      Status
}

func (e ErrNotInStatus) Error() string {
	return fmt.Sprintf("no %s payout for operation %s", e.Status, e.OperationID)
}

// Settle marks the payout of operationID sent and releases the withdrawal
// entry held back from the journal. Settling twice is harmless. Both
// repositories should be bound to the same transaction.
func Settle(ctx context.Context, payouts Repository, messages outbox.Repository, operationID uuid.UUID) error {
	err := payouts.UpdateStatus(ctx, operationID, StatusPending, StatusSent)
	if err != nil && !errors.As(err, &ErrNotInStatus{}) {
		return fmt.Errorf("failed to mark payout sent: %w", err)
	}

	msg, err := messages.GetByOperationID(ctx, operationID)
	if err != nil {
		return fmt.Errorf("failed to load held journal entry: %w", err)
	}
	if msg.Status != shared.OutboxStatusAwaitingPayout {
		return nil
	}
	if err := messages.UpdateStatus(ctx, msg.ID, shared.OutboxStatusPending); err != nil {
		return fmt.Errorf("failed to release journal entry: %w", err)
	}
	return nil
}

// Cancel withdraws a payout that was never sent and drops the journal entry
// held for it. A payout that is no longer pending cannot be cancelled.
func Cancel(ctx context.Context, payouts Repository, messages outbox.Repository, operationID uuid.UUID) error {
	if err := payouts.UpdateStatus(ctx, operationID, StatusPending, StatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel payout: %w", err)
	}

	msg, err := messages.GetByOperationID(ctx, operationID)
	if err != nil {
		if errors.As(err, &outbox.ErrMessageNotFound{}) {
			return nil
		}
		return fmt.Errorf("failed to load held journal entry: %w", err)
	}
	if msg.Status != shared.OutboxStatusAwaitingPayout {
		return fmt.Errorf("journal entry of operation %s already released as %s", operationID, msg.Status)
	}
	if err := messages.Delete(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to drop held journal entry: %w", err)
	}
	return nil
}
