package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/outbox"
	"github.com/channel-access-ledger/internal/domain/shared"
)

// JournalPublisher publishes outbox messages to the operation journal
type JournalPublisher interface {
	PublishToJournal(ctx context.Context, message *outbox.Message) error
}

type JournalPublisherImpl struct {
	outboxRepo  outbox.Repository
	journalRepo journal.Repository
	logger      *slog.Logger
}

func NewJournalPublisher(
	outboxRepo outbox.Repository,
	journalRepo journal.Repository,
	logger *slog.Logger,
) JournalPublisher {
	return &JournalPublisherImpl{
		outboxRepo:  outboxRepo,
		journalRepo: journalRepo,
		logger:      logger,
	}
}

// PublishToJournal writes the completed entry carried by message and marks the
// message processed. Publishing the same message twice is harmless.
func (p *JournalPublisherImpl) PublishToJournal(ctx context.Context, message *outbox.Message) error {
	entry, err := message.JournalEntry()
	if err != nil {
		p.logger.Error("Failed to unmarshal journal entry from outbox payload",
			"outbox_id", message.ID, "operation_id", message.OperationID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if entry.CorrelationID != "" {
		logger = p.logger.With("correlation_id", entry.CorrelationID)
	}
	opID := entry.OperationID.String()

	logger.Debug("Publishing outbox message to journal", "outbox_id", message.ID, "operation_id", opID)

	existing, err := p.journalRepo.GetByOperationID(ctx, entry.OperationID)
	if err != nil && !errors.Is(err, journal.ErrEntryNotFound{}) {
		logger.Error("Failed to check existing journal entry before publishing", "operation_id", opID, "error", err)
		return fmt.Errorf("failed to check existing journal entry %s: %w", opID, err)
	}

	switch {
	case existing == nil:
		err = p.journalRepo.Create(ctx, entry)
		if errors.Is(err, journal.ErrDuplicateEntry{}) {
			logger.Info("Journal entry created concurrently", "operation_id", opID)
			err = nil
		}
		if err != nil {
			logger.Error("Failed to create journal entry", "operation_id", opID, "error", err)
			return fmt.Errorf("failed to create journal entry %s: %w", opID, err)
		}
		logger.Info("Created journal entry", "operation_id", opID, "type", entry.Type)
	case existing.Status == shared.OperationStatusCompleted:
		logger.Info("Journal entry already COMPLETED", "operation_id", opID)
	default:
		if err := p.journalRepo.UpdateStatus(ctx, entry.OperationID, shared.OperationStatusCompleted, ""); err != nil {
			logger.Error("Failed to update existing journal entry to COMPLETED", "operation_id", opID, "error", err)
			return fmt.Errorf("failed to update journal entry %s to COMPLETED: %w", opID, err)
		}
		logger.Info("Updated existing journal entry to COMPLETED", "operation_id", opID)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "operation_id", opID, "error", err,
		)
		return fmt.Errorf("journal write for %s OK, but failed to mark outbox %d as PROCESSED: %w", opID, message.ID, err)
	}

	logger.Info("Outbox message published and marked as PROCESSED", "outbox_id", message.ID, "operation_id", opID)
	return nil
}
