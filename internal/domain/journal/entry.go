package journal

import (
	"time"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Entry records the outcome of one ledger operation
type Entry struct {
	OperationID      uuid.UUID              `json:"operation_id"`
	Type             shared.OperationType   `json:"type"`
	Principal        string                 `json:"principal"`
	ChannelID        uint64                 `json:"channel_id,omitempty"`
	ChannelName      string                 `json:"channel_name,omitempty"`
	Cost             uint64                 `json:"cost,omitempty"`
	Payment          uint64                 `json:"payment,omitempty"`
	MembershipID     uint64                 `json:"membership_id,omitempty"`
	Amount           uint64                 `json:"amount,omitempty"` // withdrawn amount
	CustodialBalance uint64                 `json:"custodial_balance"`
	IdempotencyKey   string                 `json:"idempotency_key,omitempty"`
	CorrelationID    string                 `json:"correlation_id,omitempty"`
	Status           shared.OperationStatus `json:"status"`
	FailureReason    string                 `json:"failure_reason,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty"`
}

// NewEntry builds an entry carrying the request attributes
func NewEntry(req *shared.OperationRequest, status shared.OperationStatus) *Entry {
	return &Entry{
		OperationID:    req.OperationID,
		Type:           req.Type,
		Principal:      req.Principal,
		ChannelID:      req.ChannelID,
		ChannelName:    req.ChannelName,
		Cost:           req.Cost,
		Payment:        req.Payment,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
		Status:         status,
		CreatedAt:      req.Timestamp,
	}
}

// Complete fills in the outcome of an applied change and marks the entry completed
func (e *Entry) Complete(change access.Change, at time.Time) {
	if change.Channel != nil {
		e.ChannelID = uint64(change.Channel.ID)
		e.ChannelName = change.Channel.Name
		e.Cost = change.Channel.Cost
	}
	if change.Membership != nil {
		e.MembershipID = uint64(change.Membership.ID)
	}
	if change.Kind == access.ChangeFundsWithdrawn {
		e.Amount = change.Amount
	}
	e.CustodialBalance = change.CustodialBalance
	e.Status = shared.OperationStatusCompleted
	e.FailureReason = ""
	e.ProcessedAt = &at
}

// Fail marks the entry failed with reason
func (e *Entry) Fail(reason string, at time.Time) {
	e.Status = shared.OperationStatusFailed
	e.FailureReason = reason
	e.ProcessedAt = &at
}
