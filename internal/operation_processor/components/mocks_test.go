package components

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/payout"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
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

type MockStateRepo struct {
	mock.Mock
}

func (m *MockStateRepo) LoadSnapshot(ctx context.Context) (*access.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Snapshot), args.Error(1)
}

func (m *MockStateRepo) SaveGenesis(ctx context.Context, meta access.Metadata) error {
	args := m.Called(ctx, meta)
	return args.Error(0)
}

func (m *MockStateRepo) ApplyChange(ctx context.Context, change access.Change) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockStateRepo) GetSummary(ctx context.Context) (*access.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Summary), args.Error(1)
}

func (m *MockStateRepo) GetChannel(ctx context.Context, id access.ChannelID) (*access.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Channel), args.Error(1)
}

func (m *MockStateRepo) ListChannels(ctx context.Context, limit, offset int) ([]*access.Channel, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*access.Channel), args.Error(1)
}

func (m *MockStateRepo) GetMembership(ctx context.Context, id access.MembershipID) (*access.Membership, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Membership), args.Error(1)
}

func (m *MockStateRepo) HasJoined(ctx context.Context, channelID access.ChannelID, principal access.Principal) (bool, error) {
	args := m.Called(ctx, channelID, principal)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateRepo) WithTx(tx pgx.Tx) access.Repository {
	args := m.Called(tx)
	return args.Get(0).(access.Repository)
}

type MockTransferer struct {
	mock.Mock
}

func (m *MockTransferer) Transfer(ctx context.Context, to access.Principal, amount uint64) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}
