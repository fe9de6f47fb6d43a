// Package payout tracks the funds a withdrawal moves out of custody. An
// instruction is committed together with the zeroed balance and published to
// the settlement side afterwards.
package payout

import (
	"time"

	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusCancelled Status = "CANCELLED"
)

// Instruction asks the settlement side to pay Amount to Recipient. The
// operation id identifies the payout downstream, so publishing it twice pays once.
type Instruction struct {
	ID            int64     `json:"id"`
	OperationID   uuid.UUID `json:"operation_id"`
	Recipient     string    `json:"recipient"`
	Amount        uint64    `json:"amount"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewInstruction(req *shared.OperationRequest, recipient string, amount uint64, now time.Time) *Instruction {
	return &Instruction{
		OperationID:   req.OperationID,
		Recipient:     recipient,
		Amount:        amount,
		CorrelationID: req.CorrelationID,
		Status:        StatusPending,
		CreatedAt:     now,
	}
}
