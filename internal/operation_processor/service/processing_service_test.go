package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockOperationValidator struct {
	mock.Mock
}

func (m *MockOperationValidator) Validate(ctx context.Context, request *shared.OperationRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockOperationValidator) CheckIdempotency(ctx context.Context, request *shared.OperationRequest) (bool, error) {
	args := m.Called(ctx, request)
	return args.Bool(0), args.Error(1)
}

type MockAccessLedger struct {
	mock.Mock
}

func (m *MockAccessLedger) RegisterChannel(ctx context.Context, caller access.Principal, name string, cost uint64) (access.ChannelID, error) {
	args := m.Called(ctx, caller, name, cost)
	return args.Get(0).(access.ChannelID), args.Error(1)
}

func (m *MockAccessLedger) JoinChannel(ctx context.Context, caller access.Principal, channelID access.ChannelID, payment uint64) (access.MembershipID, error) {
	args := m.Called(ctx, caller, channelID, payment)
	return args.Get(0).(access.MembershipID), args.Error(1)
}

func (m *MockAccessLedger) Withdraw(ctx context.Context, caller access.Principal) (uint64, error) {
	args := m.Called(ctx, caller)
	return args.Get(0).(uint64), args.Error(1)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, request *shared.OperationRequest, failureReason string) error {
	args := m.Called(ctx, request, failureReason)
	return args.Error(0)
}

// carriesOperation matches a context populated by shared.WithOperation
func carriesOperation(id uuid.UUID) interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool {
		req, ok := shared.OperationFromContext(ctx)
		return ok && req.OperationID == id
	})
}

func TestProcessingService_ProcessOperation(t *testing.T) {
	register := &shared.OperationRequest{
		OperationID:   uuid.New(),
		Type:          shared.OperationTypeRegisterChannel,
		Principal:     "0xdeployer",
		ChannelName:   "general",
		Cost:          1,
		CorrelationID: "corr1",
		Timestamp:     time.Now(),
	}
	join := &shared.OperationRequest{
		OperationID: uuid.New(),
		Type:        shared.OperationTypeJoinChannel,
		Principal:   "0xuser",
		ChannelID:   1,
		Payment:     10,
		Timestamp:   time.Now(),
	}
	withdraw := &shared.OperationRequest{
		OperationID: uuid.New(),
		Type:        shared.OperationTypeWithdraw,
		Principal:   "0xdeployer",
		Timestamp:   time.Now(),
	}

	tests := []struct {
		name          string
		request       *shared.OperationRequest
		setupMocks    func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder)
		expectedError string
	}{
		{
			name:    "register channel",
			request: register,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, register).Return(nil)
				v.On("CheckIdempotency", mock.Anything, register).Return(false, nil)
				l.On("RegisterChannel", carriesOperation(register.OperationID), access.Principal("0xdeployer"), "general", uint64(1)).
					Return(access.ChannelID(1), nil)
			},
		},
		{
			name:    "join channel",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(nil)
				v.On("CheckIdempotency", mock.Anything, join).Return(false, nil)
				l.On("JoinChannel", carriesOperation(join.OperationID), access.Principal("0xuser"), access.ChannelID(1), uint64(10)).
					Return(access.MembershipID(1), nil)
			},
		},
		{
			name:    "withdraw",
			request: withdraw,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, withdraw).Return(nil)
				v.On("CheckIdempotency", mock.Anything, withdraw).Return(false, nil)
				l.On("Withdraw", carriesOperation(withdraw.OperationID), access.Principal("0xdeployer")).Return(uint64(11), nil)
			},
		},
		{
			name:    "validation failure is recorded and acknowledged",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(shared.ErrMissingPrincipal)
				r.On("RecordFailure", mock.Anything, join, string(shared.FailureReasonInvalidOperation)).Return(nil)
			},
		},
		{
			name:    "already processed is skipped",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(nil)
				v.On("CheckIdempotency", mock.Anything, join).Return(true, nil)
			},
		},
		{
			name:    "idempotency check error is retried",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(nil)
				v.On("CheckIdempotency", mock.Anything, join).Return(false, errors.New("mongo down"))
			},
			expectedError: "mongo down",
		},
		{
			name:    "insufficient payment is recorded",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(nil)
				v.On("CheckIdempotency", mock.Anything, join).Return(false, nil)
				l.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(access.MembershipID(0), access.ErrInsufficientPayment)
				r.On("RecordFailure", mock.Anything, join, string(shared.FailureReasonInsufficientPayment)).Return(nil)
			},
		},
		{
			name:    "unauthorized withdraw is recorded",
			request: withdraw,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, withdraw).Return(nil)
				v.On("CheckIdempotency", mock.Anything, withdraw).Return(false, nil)
				l.On("Withdraw", mock.Anything, mock.Anything).Return(uint64(0), access.ErrUnauthorized)
				r.On("RecordFailure", mock.Anything, withdraw, string(shared.FailureReasonUnauthorized)).Return(nil)
			},
		},
		{
			name:    "commit failure is retried",
			request: register,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, register).Return(nil)
				v.On("CheckIdempotency", mock.Anything, register).Return(false, nil)
				l.On("RegisterChannel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(access.ChannelID(0), fmt.Errorf("%w: db down", access.ErrCommitFailed))
			},
			expectedError: "commit of operation",
		},
		{
			name:    "failure recording error is retried",
			request: join,
			setupMocks: func(v *MockOperationValidator, l *MockAccessLedger, r *MockFailureRecorder) {
				v.On("Validate", mock.Anything, join).Return(nil)
				v.On("CheckIdempotency", mock.Anything, join).Return(false, nil)
				l.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(access.MembershipID(0), access.ErrChannelNotFound{ChannelID: 1})
				r.On("RecordFailure", mock.Anything, join, string(shared.FailureReasonChannelNotFound)).Return(errors.New("mongo down"))
			},
			expectedError: "failed to record failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &MockOperationValidator{}
			ledger := &MockAccessLedger{}
			recorder := &MockFailureRecorder{}
			tt.setupMocks(validator, ledger, recorder)

			svc := NewProcessingService(ledger, validator, recorder, time.Second, slog.Default())
			err := svc.ProcessOperation(context.Background(), tt.request)

			if tt.expectedError != "" {
				assert.ErrorContains(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			validator.AssertExpectations(t)
			ledger.AssertExpectations(t)
			recorder.AssertExpectations(t)
		})
	}
}

func TestProcessingService_UnknownTypeAfterValidation(t *testing.T) {
	request := &shared.OperationRequest{OperationID: uuid.New(), Type: "BURN", Principal: "0xuser"}
	validator := &MockOperationValidator{}
	recorder := &MockFailureRecorder{}
	validator.On("Validate", mock.Anything, request).Return(nil)
	validator.On("CheckIdempotency", mock.Anything, request).Return(false, nil)
	recorder.On("RecordFailure", mock.Anything, request, string(shared.FailureReasonInvalidOperation)).Return(nil)

	svc := NewProcessingService(&MockAccessLedger{}, validator, recorder, time.Second, slog.Default())
	assert.NoError(t, svc.ProcessOperation(context.Background(), request))
	recorder.AssertExpectations(t)
}

func TestProcessingService_DuplicateIdempotencyKey(t *testing.T) {
	request := &shared.OperationRequest{
		OperationID:    uuid.New(),
		Type:           shared.OperationTypeJoinChannel,
		Principal:      "0xuser",
		ChannelID:      1,
		Payment:        1,
		IdempotencyKey: "join-1",
	}
	validator := &MockOperationValidator{}
	recorder := &MockFailureRecorder{}
	ledger := &MockAccessLedger{}
	validator.On("Validate", mock.Anything, request).Return(nil)
	validator.On("CheckIdempotency", mock.Anything, request).Return(false, shared.ErrDuplicateRequest)
	recorder.On("RecordFailure", mock.Anything, mock.MatchedBy(func(r *shared.OperationRequest) bool {
		return r.OperationID == request.OperationID && r.IdempotencyKey == ""
	}), string(shared.FailureReasonDuplicateRequest)).Return(nil).Once()

	svc := NewProcessingService(ledger, validator, recorder, time.Second, slog.Default())
	assert.NoError(t, svc.ProcessOperation(context.Background(), request))
	assert.Equal(t, "join-1", request.IdempotencyKey)
	recorder.AssertExpectations(t)
	ledger.AssertNotCalled(t, "JoinChannel", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessingService_ApplyOutlivesCanceledContext(t *testing.T) {
	request := &shared.OperationRequest{OperationID: uuid.New(), Type: shared.OperationTypeWithdraw, Principal: "0xdeployer"}
	validator := &MockOperationValidator{}
	ledger := &MockAccessLedger{}
	validator.On("Validate", mock.Anything, request).Return(nil)
	validator.On("CheckIdempotency", mock.Anything, request).Return(false, nil)

	var applyErr error
	var hasDeadline bool
	ledger.On("Withdraw", carriesOperation(request.OperationID), access.Principal("0xdeployer")).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			applyErr = ctx.Err()
			_, hasDeadline = ctx.Deadline()
		}).
		Return(uint64(11), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewProcessingService(ledger, validator, &MockFailureRecorder{}, time.Second, slog.Default())
	assert.NoError(t, svc.ProcessOperation(ctx, request))
	assert.NoError(t, applyErr)
	assert.True(t, hasDeadline)
	ledger.AssertExpectations(t)
}

func TestFailureReasonFor(t *testing.T) {
	tests := []struct {
		err      error
		expected shared.FailureReason
	}{
		{access.ErrUnauthorized, shared.FailureReasonUnauthorized},
		{access.ErrChannelNotFound{ChannelID: 9}, shared.FailureReasonChannelNotFound},
		{access.ErrInsufficientPayment, shared.FailureReasonInsufficientPayment},
		{fmt.Errorf("%w: overflow", access.ErrInvalidArgument), shared.FailureReasonInvalidArgument},
		{fmt.Errorf("%w: broker down", access.ErrTransferFailed), shared.FailureReasonTransferFailed},
		{access.ErrCommitFailed, shared.FailureReasonCommitFailed},
		{shared.ErrInvalidOperationType, shared.FailureReasonInvalidOperation},
		{shared.ErrDuplicateRequest, shared.FailureReasonDuplicateRequest},
		{errors.New("boom"), shared.FailureReasonUnknownError},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, FailureReasonFor(tt.err))
		})
	}
}
