package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/config"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// PayoutRelay publishes committed payouts whose settlement was never recorded,
// after a crash between commit and transfer or a failed settlement commit.
// Instructions younger than retryAfter belong to a withdrawal still in flight
// and are left alone.
type PayoutRelay struct {
	db         persistence.TxBeginner
	payoutRepo payout.Repository
	outboxRepo outbox.Repository
	publisher  payout.Publisher
	logger     *slog.Logger
	interval   time.Duration
	retryAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func NewPayoutRelay(
	cfg *config.OutboxConfig,
	db persistence.TxBeginner,
	payoutRepo payout.Repository,
	outboxRepo outbox.Repository,
	publisher payout.Publisher,
	logger *slog.Logger,
) *PayoutRelay {
	return &PayoutRelay{
		db:         db,
		payoutRepo: payoutRepo,
		outboxRepo: outboxRepo,
		publisher:  publisher,
		logger:     logger,
		interval:   cfg.PollingInterval,
		retryAfter: cfg.PayoutRetryAfter,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
}

// Start relays stale payouts until ctx is canceled
func (r *PayoutRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Payout relay stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := r.Relay(ctx, r.retryAfter); err != nil {
				r.logger.Error("Error relaying pending payouts", "error", err)
			}
		}
	}
}

// Relay publishes and settles every pending payout older than minAge. With a
// zero minAge it drains all of them, which is only safe while no withdrawal
// is being applied.
func (r *PayoutRelay) Relay(ctx context.Context, minAge time.Duration) error {
	pending, err := r.payoutRepo.GetPending(ctx, r.now().Add(-minAge), r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending payouts: %w", err)
	}

	var errs []error
	for _, instruction := range pending {
		logger := r.logger.With("operation_id", instruction.OperationID.String(), "amount", instruction.Amount)
		if instruction.CorrelationID != "" {
			logger = logger.With("correlation_id", instruction.CorrelationID)
		}

		if err := r.publisher.Publish(ctx, instruction); err != nil {
			logger.Error("Failed to relay payout", "attempts", instruction.Attempts+1, "error", err)
			if errInc := r.payoutRepo.IncrementAttempts(ctx, instruction.OperationID); errInc != nil {
				logger.Error("Failed to count payout attempt", "error", errInc)
			}
			errs = append(errs, err)
			continue
		}

		err := persistence.ExecuteTx(ctx, r.db, func(tx pgx.Tx) error {
			return payout.Settle(ctx, r.payoutRepo.WithTx(tx), r.outboxRepo.WithTx(tx), instruction.OperationID)
		})
		if err != nil {
			logger.Error("Payout relayed but settlement not committed", "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Warn("Relayed pending payout")
	}
	return errors.Join(errs...)
}
