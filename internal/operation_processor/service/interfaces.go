package service

import (
	"context"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/shared"
)

// ProcessingService defines the interface for processing operation requests.
type ProcessingService interface {
	ProcessOperation(ctx context.Context, request *shared.OperationRequest) error
}

// OperationValidator validates operation requests before processing
type OperationValidator interface {
	Validate(ctx context.Context, request *shared.OperationRequest) error
	CheckIdempotency(ctx context.Context, request *shared.OperationRequest) (bool, error)
}

// AccessLedger is the subset of *access.Ledger the processor mutates
type AccessLedger interface {
	RegisterChannel(ctx context.Context, caller access.Principal, name string, cost uint64) (access.ChannelID, error)
	JoinChannel(ctx context.Context, caller access.Principal, channelID access.ChannelID, payment uint64) (access.MembershipID, error)
	Withdraw(ctx context.Context, caller access.Principal) (uint64, error)
}

// FailureRecorder handles recording failed operations
type FailureRecorder interface {
	RecordFailure(ctx context.Context, request *shared.OperationRequest, failureReason string) error
}
