package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

var ErrNoOperationInContext = errors.New("no operation request in context")

// LedgerCommitter writes each ledger change and its completed journal entry
// to Postgres in one transaction. The outbox poller later moves the entry to
// the journal store.
//
// A withdrawal also writes its payout instruction, and its journal entry is
// held until the payout is settled or reverted.
type LedgerCommitter struct {
	db         persistence.TxBeginner
	stateRepo  access.Repository
	outboxRepo outbox.Repository
	payoutRepo payout.Repository
	logger     *slog.Logger
	now        func() time.Time
}

func NewLedgerCommitter(
	db persistence.TxBeginner,
	stateRepo access.Repository,
	outboxRepo outbox.Repository,
	payoutRepo payout.Repository,
	logger *slog.Logger,
) *LedgerCommitter {
	return &LedgerCommitter{
		db:         db,
		stateRepo:  stateRepo,
		outboxRepo: outboxRepo,
		payoutRepo: payoutRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// Commit implements access.Committer. ctx must carry the operation via shared.WithOperation.
func (c *LedgerCommitter) Commit(ctx context.Context, change access.Change) error {
	request, ok := shared.OperationFromContext(ctx)
	if !ok {
		return ErrNoOperationInContext
	}

	logger := c.logger.With("operation_id", request.OperationID.String(), "kind", change.Kind)
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}

	var err error
	switch change.Kind {
	case access.ChangeWithdrawalSettled:
		err = persistence.ExecuteTx(ctx, c.db, func(tx pgx.Tx) error {
			return payout.Settle(ctx, c.payoutRepo.WithTx(tx), c.outboxRepo.WithTx(tx), request.OperationID)
		})
	case access.ChangeWithdrawalReverted:
		err = persistence.ExecuteTx(ctx, c.db, func(tx pgx.Tx) error {
			if err := c.stateRepo.WithTx(tx).ApplyChange(ctx, change); err != nil {
				return fmt.Errorf("failed to restore balance: %w", err)
			}
			return payout.Cancel(ctx, c.payoutRepo.WithTx(tx), c.outboxRepo.WithTx(tx), request.OperationID)
		})
	default:
		err = c.commitApplied(ctx, request, change)
	}
	if err != nil {
		logger.Error("Failed to commit ledger change", "error", err)
		return err
	}

	logger.Info("Ledger change committed", "custodial_balance", change.CustodialBalance)
	return nil
}

// commitApplied writes the state change with its journal entry, and the
// payout instruction when funds are about to leave custody.
func (c *LedgerCommitter) commitApplied(ctx context.Context, request *shared.OperationRequest, change access.Change) error {
	now := c.now().UTC()
	entry := journal.NewEntry(request, shared.OperationStatusProcessing)
	entry.Complete(change, now)

	message, err := outbox.NewMessage(entry)
	if err != nil {
		return fmt.Errorf("failed to create outbox message payload for operation %s: %w", request.OperationID.String(), err)
	}

	var instruction *payout.Instruction
	if change.Kind == access.ChangeFundsWithdrawn && change.Amount > 0 {
		instruction = payout.NewInstruction(request, string(change.Caller), change.Amount, now)
		message.Status = shared.OutboxStatusAwaitingPayout
	}

	return persistence.ExecuteTx(ctx, c.db, func(tx pgx.Tx) error {
		if err := c.stateRepo.WithTx(tx).ApplyChange(ctx, change); err != nil {
			return fmt.Errorf("failed to apply %s: %w", change.Kind, err)
		}
		if err := c.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}
		if instruction != nil {
			if err := c.payoutRepo.WithTx(tx).Create(ctx, instruction); err != nil {
				return fmt.Errorf("failed to record payout: %w", err)
			}
		}
		return nil
	})
}
