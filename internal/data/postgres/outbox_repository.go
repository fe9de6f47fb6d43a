package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/channel-access-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations
const uniqueViolation = "23505"

const outboxSelect = `
	SELECT id, operation_id, principal, COALESCE(idempotency_key, ''), payload, status, attempts, created_at, last_attempt_at
	FROM operation_outbox
`

// OutboxRepository stores journal entries committed with ledger changes until
// the poller has moved them to the journal.
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx so messages commit with the state change
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{querier: tx, logger: r.logger}
}

// Create stores message. A second message for the same operation fails with
// ErrDuplicateMessage.
func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	query := `
		INSERT INTO operation_outbox (operation_id, principal, idempotency_key, payload, status, attempts, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		message.OperationID,
		message.Principal,
		message.IdempotencyKey,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return outbox.ErrDuplicateMessage{OperationID: message.OperationID}
	}
	r.logger.Error("Failed to create outbox message", "operation_id", message.OperationID.String(), "error", err)
	return fmt.Errorf("failed to create outbox message: %w", err)
}

// GetPending returns up to limit messages ready for the journal, in commit order.
// Held withdrawal entries are not ready.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	rows, err := r.querier.Query(ctx, outboxSelect+` WHERE status = $1 ORDER BY id ASC LIMIT $2`, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*outbox.Message, error) {
		return scanMessage(row)
	})
	if err != nil {
		r.logger.Error("Failed to read pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to read pending outbox messages: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return r.execByID(ctx, "update outbox message status",
		`UPDATE operation_outbox SET status = $1, last_attempt_at = $2 WHERE id = $3`,
		id, status, time.Now(), id)
}

// IncrementAttempts bumps the journal publish retry counter
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	return r.execByID(ctx, "increment outbox message attempts",
		`UPDATE operation_outbox SET attempts = attempts + 1, last_attempt_at = $1 WHERE id = $2`,
		id, time.Now(), id)
}

func (r *OutboxRepository) Delete(ctx context.Context, id int64) error {
	return r.execByID(ctx, "delete outbox message", `DELETE FROM operation_outbox WHERE id = $1`, id, id)
}

// execByID runs a statement touching the single message id and maps zero
// affected rows to ErrMessageNotFound.
func (r *OutboxRepository) execByID(ctx context.Context, action, query string, id int64, args ...any) error {
	result, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+action, "id", id, "error", err)
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

// GetByOperationID returns ErrMessageNotFound when the operation has no message
func (r *OutboxRepository) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*outbox.Message, error) {
	message, err := scanMessage(r.querier.QueryRow(ctx, outboxSelect+` WHERE operation_id = $1`, operationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, outbox.ErrMessageNotFound{}
		}
		r.logger.Error("Failed to get outbox message by operation ID", "operation_id", operationID.String(), "error", err)
		return nil, fmt.Errorf("failed to get outbox message by operation ID: %w", err)
	}
	return message, nil
}

// GetByIdempotencyKey returns ErrMessageNotFound when no committed operation carries key
func (r *OutboxRepository) GetByIdempotencyKey(ctx context.Context, key string) (*outbox.Message, error) {
	if key == "" {
		return nil, errors.New("idempotency key cannot be empty")
	}

	message, err := scanMessage(r.querier.QueryRow(ctx, outboxSelect+` WHERE idempotency_key = $1 ORDER BY id ASC LIMIT 1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, outbox.ErrMessageNotFound{}
		}
		r.logger.Error("Failed to get outbox message by idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("failed to get outbox message by idempotency key: %w", err)
	}
	return message, nil
}

func scanMessage(row pgx.Row) (*outbox.Message, error) {
	var m outbox.Message
	if err := row.Scan(
		&m.ID,
		&m.OperationID,
		&m.Principal,
		&m.IdempotencyKey,
		&m.Payload,
		&m.Status,
		&m.Attempts,
		&m.CreatedAt,
		&m.LastAttemptAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
