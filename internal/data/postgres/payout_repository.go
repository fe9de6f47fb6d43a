package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PayoutRepository stores withdrawal payouts committed with the zeroed balance
type PayoutRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPayoutRepository(logger *slog.Logger, db *persistence.PostgresDB) payout.Repository {
	return &PayoutRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *PayoutRepository) WithTx(tx pgx.Tx) payout.Repository {
	return &PayoutRepository{querier: tx, logger: r.logger}
}

// Create stores a pending instruction. Each operation pays out at most once.
func (r *PayoutRepository) Create(ctx context.Context, instruction *payout.Instruction) error {
	query := `
		INSERT INTO payout_outbox (operation_id, recipient, amount, correlation_id, status, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $6)
		RETURNING id
	`
	err := r.querier.QueryRow(ctx, query,
		instruction.OperationID,
		instruction.Recipient,
		formatAmount(instruction.Amount),
		instruction.CorrelationID,
		instruction.Status,
		instruction.CreatedAt,
	).Scan(&instruction.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("payout for operation %s already exists: %w", instruction.OperationID, err)
		}
		r.logger.Error("Failed to create payout", "operation_id", instruction.OperationID.String(), "error", err)
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// GetPending returns pending payouts created before cutoff, oldest first
func (r *PayoutRepository) GetPending(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Instruction, error) {
	query := `
		SELECT id, operation_id, recipient, amount::text, correlation_id, status, attempts, created_at
		FROM payout_outbox
		WHERE status = $1 AND created_at <= $2
		ORDER BY id ASC
		LIMIT $3
	`
	rows, err := r.querier.Query(ctx, query, payout.StatusPending, cutoff, limit)
	if err != nil {
		r.logger.Error("Failed to get pending payouts", "error", err)
		return nil, fmt.Errorf("failed to get pending payouts: %w", err)
	}

	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*payout.Instruction, error) {
		var (
			ins    payout.Instruction
			amount string
		)
		if err := row.Scan(&ins.ID, &ins.OperationID, &ins.Recipient, &amount, &ins.CorrelationID, &ins.Status, &ins.Attempts, &ins.CreatedAt); err != nil {
			return nil, err
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}
		ins.Amount = v
		return &ins, nil
	})
	if err != nil {
		r.logger.Error("Failed to read pending payouts", "error", err)
		return nil, fmt.Errorf("failed to read pending payouts: %w", err)
	}
	return pending, nil
}

func (r *PayoutRepository) UpdateStatus(ctx context.Context, operationID uuid.UUID, from, to payout.Status) error {
	query := `
		UPDATE payout_outbox
		SET status = $1, updated_at = NOW()
		WHERE operation_id = $2 AND status = $3
	`
	result, err := r.querier.Exec(ctx, query, to, operationID, from)
	if err != nil {
		r.logger.Error("Failed to update payout status",
			"operation_id", operationID.String(),
			"from", from,
			"to", to,
			"error", err,
		)
		return fmt.Errorf("failed to update payout status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return payout.ErrNotInStatus{OperationID: operationID, Status: from}
	}
	return nil
}

func (r *PayoutRepository) IncrementAttempts(ctx context.Context, operationID uuid.UUID) error {
	query := `UPDATE payout_outbox SET attempts = attempts + 1, updated_at = NOW() WHERE operation_id = $1`
	if _, err := r.querier.Exec(ctx, query, operationID); err != nil {
		return fmt.Errorf("failed to increment payout attempts: %w", err)
	}
	return nil
}
