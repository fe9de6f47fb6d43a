package outbox_poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) GetByIdempotencyKey(ctx context.Context, key string) (*outbox.Message, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

type MockPayoutRepo struct {
	mock.Mock
}

func (m *MockPayoutRepo) Create(ctx context.Context, instruction *payout.Instruction) error {
	args := m.Called(ctx, instruction)
	return args.Error(0)
}

func (m *MockPayoutRepo) GetPending(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Instruction, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payout.Instruction), args.Error(1)
}

func (m *MockPayoutRepo) UpdateStatus(ctx context.Context, operationID uuid.UUID, from, to payout.Status) error {
	args := m.Called(ctx, operationID, from, to)
	return args.Error(0)
}

func (m *MockPayoutRepo) IncrementAttempts(ctx context.Context, operationID uuid.UUID) error {
	args := m.Called(ctx, operationID)
	return args.Error(0)
}

func (m *MockPayoutRepo) WithTx(tx pgx.Tx) payout.Repository {
	args := m.Called(tx)
	return args.Get(0).(payout.Repository)
}

type MockJournalRepo struct {
	mock.Mock
}

func (m *MockJournalRepo) Create(ctx context.Context, entry *journal.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockJournalRepo) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*journal.Entry, error) {
	args := m.Called(ctx, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*journal.Entry), args.Error(1)
}

func (m *MockJournalRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*journal.Entry, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*journal.Entry), args.Error(1)
}

func (m *MockJournalRepo) ListByPrincipal(ctx context.Context, principal string, limit, offset int) ([]*journal.Entry, error) {
	args := m.Called(ctx, principal, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*journal.Entry), args.Error(1)
}

func (m *MockJournalRepo) CountByPrincipal(ctx context.Context, principal string) (int64, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJournalRepo) UpdateStatus(ctx context.Context, operationID uuid.UUID, status shared.OperationStatus, reason string) error {
	args := m.Called(ctx, operationID, status, reason)
	return args.Error(0)
}

type MockJournalPublisher struct {
	mock.Mock
}

func (m *MockJournalPublisher) PublishToJournal(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// newCompletedMessage builds an outbox message around a completed join entry
func newCompletedMessage(t *testing.T, id int64) (*outbox.Message, *journal.Entry) {
	t.Helper()
	entry := &journal.Entry{
		OperationID:      uuid.New(),
		Type:             shared.OperationTypeJoinChannel,
		Principal:        "0xuser",
		ChannelID:        1,
		Payment:          10,
		MembershipID:     2,
		CustodialBalance: 11,
		CorrelationID:    "corr1",
		Status:           shared.OperationStatusCompleted,
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	return &outbox.Message{
		ID:          id,
		OperationID: entry.OperationID,
		Principal:   entry.Principal,
		Payload:     payload,
		Status:      shared.OutboxStatusPending,
	}, entry
}
