package service

import (
	"context"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// LedgerQueryService serves reads from the persisted ledger state
type LedgerQueryService interface {
	GetSummary(ctx context.Context) (*access.Summary, error)

	// GetChannel returns access.ErrChannelNotFound for unknown ids
	GetChannel(ctx context.Context, id access.ChannelID) (*access.Channel, error)

	// ListChannels returns one page of channels in id order and the total channel count
	ListChannels(ctx context.Context, page, perPage int) ([]*access.Channel, uint64, error)

	// GetMembership returns access.ErrMembershipNotFound for unknown ids
	GetMembership(ctx context.Context, id access.MembershipID) (*access.Membership, error)

	// HasJoined is false for unknown channels
	HasJoined(ctx context.Context, channelID access.ChannelID, principal access.Principal) (bool, error)
}

// OperationService submits ledger operations and reads their outcomes
type OperationService interface {
	// SubmitOperation publishes the request for processing with idempotency support
	// Returns the operation ID, the existing journal entry (if found via idempotencyKey), and any error
	SubmitOperation(ctx context.Context, request *shared.OperationRequest) (string, *journal.Entry, error)

	// GetOperationByID returns nil if the operation has not been journaled
	GetOperationByID(ctx context.Context, operationID uuid.UUID) (*journal.Entry, error)

	// GetOperationsByPrincipal returns one page of entries and the total count
	GetOperationsByPrincipal(ctx context.Context, principal string, page, perPage int) ([]*journal.Entry, int64, error)
}
