package journal

import (
	"context"

	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository manages journal entry persistence with pagination support
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByOperationID(ctx context.Context, operationID uuid.UUID) (*Entry, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Entry, error)
	ListByPrincipal(ctx context.Context, principal string, limit, offset int) ([]*Entry, error)
	CountByPrincipal(ctx context.Context, principal string) (int64, error)
	UpdateStatus(ctx context.Context, operationID uuid.UUID, status shared.OperationStatus, reason string) error
}

// ErrEntryNotFound indicates missing journal entry
type ErrEntryNotFound struct {
	OperationID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "journal entry not found: " + e.OperationID.String()
}

// Is matches any ErrEntryNotFound when the target has no operation id
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.OperationID == uuid.Nil {
		return true
	}
	return e.OperationID == t.OperationID
}

// ErrDuplicateEntry indicates operation uniqueness violation
type ErrDuplicateEntry struct {
	OperationID uuid.UUID
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate journal entry: " + e.OperationID.String()
}

func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.OperationID == uuid.Nil {
		return true
	}
	return e.OperationID == t.OperationID
}
