package outbox

import (
	"encoding/json"
	"time"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Message carries a completed journal entry from the state transaction to the journal
type Message struct {
	ID             int64               `json:"id"`
	OperationID    uuid.UUID           `json:"operation_id"`
	Principal      string              `json:"principal"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage     `json:"payload"`
	Status         shared.OutboxStatus `json:"status"`
	Attempts       int                 `json:"attempts"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAttemptAt  *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(entry *journal.Entry) (*Message, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	return &Message{
		OperationID:    entry.OperationID,
		Principal:      entry.Principal,
		IdempotencyKey: entry.IdempotencyKey,
		Payload:        payload,
		Status:         shared.OutboxStatusPending,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// JournalEntry decodes the payload
func (m *Message) JournalEntry() (*journal.Entry, error) {
	var entry journal.Entry
	if err := json.Unmarshal(m.Payload, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
