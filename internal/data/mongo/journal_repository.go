package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// JournalCollectionName is the name of the operation journal collection in MongoDB
	JournalCollectionName = "operation_journal"
)

// JournalRepository implements the journal.Repository interface for MongoDB
type JournalRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewJournalRepository creates a new MongoDB journal repository
func NewJournalRepository(logger *slog.Logger, db *mongo.Database) journal.Repository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

// entryDocument is the stored form of a journal entry. Amounts are Decimal128
// because BSON has no unsigned 64-bit integer.
type entryDocument struct {
	OperationID      string                 `bson:"operation_id"`
	Type             shared.OperationType   `bson:"type"`
	Principal        string                 `bson:"principal"`
	ChannelID        int64                  `bson:"channel_id,omitempty"`
	ChannelName      string                 `bson:"channel_name,omitempty"`
	Cost             primitive.Decimal128   `bson:"cost"`
	Payment          primitive.Decimal128   `bson:"payment"`
	MembershipID     int64                  `bson:"membership_id,omitempty"`
	Amount           primitive.Decimal128   `bson:"amount"`
	CustodialBalance primitive.Decimal128   `bson:"custodial_balance"`
	IdempotencyKey   string                 `bson:"idempotency_key,omitempty"`
	CorrelationID    string                 `bson:"correlation_id,omitempty"`
	Status           shared.OperationStatus `bson:"status"`
	FailureReason    string                 `bson:"failure_reason,omitempty"`
	CreatedAt        time.Time              `bson:"created_at"`
	ProcessedAt      *time.Time             `bson:"processed_at,omitempty"`
}

func toDecimal(v uint64) primitive.Decimal128 {
	d, _ := primitive.ParseDecimal128(strconv.FormatUint(v, 10))
	return d
}

func fromDecimal(d primitive.Decimal128) (uint64, error) {
	bi, exp, err := d.BigInt()
	if err != nil {
		return 0, err
	}
	if bi.Sign() == 0 {
		return 0, nil
	}
	for ; exp > 0; exp-- {
		bi.Mul(bi, big.NewInt(10))
	}
	if exp < 0 || bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s is not an unsigned integer", d.String())
	}
	return bi.Uint64(), nil
}

func toDocument(e *journal.Entry) *entryDocument {
	return &entryDocument{
		OperationID:      e.OperationID.String(),
		Type:             e.Type,
		Principal:        e.Principal,
		ChannelID:        int64(e.ChannelID),
		ChannelName:      e.ChannelName,
		Cost:             toDecimal(e.Cost),
		Payment:          toDecimal(e.Payment),
		MembershipID:     int64(e.MembershipID),
		Amount:           toDecimal(e.Amount),
		CustodialBalance: toDecimal(e.CustodialBalance),
		IdempotencyKey:   e.IdempotencyKey,
		CorrelationID:    e.CorrelationID,
		Status:           e.Status,
		FailureReason:    e.FailureReason,
		CreatedAt:        e.CreatedAt,
		ProcessedAt:      e.ProcessedAt,
	}
}

func (d *entryDocument) toEntry() (*journal.Entry, error) {
	id, err := uuid.Parse(d.OperationID)
	if err != nil {
		return nil, fmt.Errorf("invalid operation id %q: %w", d.OperationID, err)
	}
	e := &journal.Entry{
		OperationID:    id,
		Type:           d.Type,
		Principal:      d.Principal,
		ChannelID:      uint64(d.ChannelID),
		ChannelName:    d.ChannelName,
		MembershipID:   uint64(d.MembershipID),
		IdempotencyKey: d.IdempotencyKey,
		CorrelationID:  d.CorrelationID,
		Status:         d.Status,
		FailureReason:  d.FailureReason,
		CreatedAt:      d.CreatedAt,
		ProcessedAt:    d.ProcessedAt,
	}
	for _, f := range []struct {
		dst *uint64
		src primitive.Decimal128
	}{
		{&e.Cost, d.Cost},
		{&e.Payment, d.Payment},
		{&e.Amount, d.Amount},
		{&e.CustodialBalance, d.CustodialBalance},
	} {
		if *f.dst, err = fromDecimal(f.src); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// EnsureIndexes creates the unique operation id index and the lookup indexes
func (r *JournalRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(JournalCollectionName)
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "operation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "principal", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create journal indexes: %w", err)
	}
	return nil
}

// Create stores a new journal entry.
// Returns ErrDuplicateEntry if the operation was already journaled.
func (r *JournalRepository) Create(ctx context.Context, entry *journal.Entry) error {
	collection := r.db.Collection(JournalCollectionName)

	_, err := collection.InsertOne(ctx, toDocument(entry))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return journal.ErrDuplicateEntry{OperationID: entry.OperationID}
		}
		r.logger.Error("Failed to create journal entry",
			"operation_id", entry.OperationID.String(),
			"error", err)
		return fmt.Errorf("failed to create journal entry: %w", err)
	}

	return nil
}

func (r *JournalRepository) findOne(ctx context.Context, filter bson.M) (*journal.Entry, error) {
	var doc entryDocument
	if err := r.db.Collection(JournalCollectionName).FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toEntry()
}

// GetByOperationID retrieves the entry of an operation.
// Returns ErrEntryNotFound if the operation was never journaled.
func (r *JournalRepository) GetByOperationID(ctx context.Context, operationID uuid.UUID) (*journal.Entry, error) {
	entry, err := r.findOne(ctx, bson.M{"operation_id": operationID.String()})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, journal.ErrEntryNotFound{OperationID: operationID}
		}
		r.logger.Error("Failed to get journal entry",
			"operation_id", operationID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}

	return entry, nil
}

// GetByIdempotencyKey returns nil, nil when no entry carries the key
func (r *JournalRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*journal.Entry, error) {
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key cannot be empty")
	}

	entry, err := r.findOne(ctx, bson.M{"idempotency_key": idempotencyKey})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get journal entry by idempotency key",
			"idempotency_key", idempotencyKey,
			"error", err)
		return nil, fmt.Errorf("failed to get journal entry by idempotency key: %w", err)
	}

	return entry, nil
}

// ListByPrincipal retrieves paginated entries submitted by principal, newest first
func (r *JournalRepository) ListByPrincipal(ctx context.Context, principal string, limit, offset int) ([]*journal.Entry, error) {
	collection := r.db.Collection(JournalCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, bson.M{"principal": principal}, opts)
	if err != nil {
		r.logger.Error("Failed to list journal entries", "principal", principal, "error", err)
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode journal entries", "principal", principal, "error", err)
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}

	entries := make([]*journal.Entry, 0, len(docs))
	for i := range docs {
		entry, err := docs[i].toEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to decode journal entries: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CountByPrincipal counts the entries submitted by principal
func (r *JournalRepository) CountByPrincipal(ctx context.Context, principal string) (int64, error) {
	count, err := r.db.Collection(JournalCollectionName).CountDocuments(ctx, bson.M{"principal": principal})
	if err != nil {
		r.logger.Error("Failed to count journal entries", "principal", principal, "error", err)
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}

// UpdateStatus sets status, failure reason and processed timestamp.
// Returns ErrEntryNotFound if the entry doesn't exist.
func (r *JournalRepository) UpdateStatus(ctx context.Context, operationID uuid.UUID, status shared.OperationStatus, reason string) error {
	collection := r.db.Collection(JournalCollectionName)

	filter := bson.M{"operation_id": operationID.String()}
	update := bson.M{
		"$set": bson.M{
			"status":         status,
			"failure_reason": reason,
			"processed_at":   time.Now(),
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to update journal entry status",
			"operation_id", operationID.String(),
			"status", string(status),
			"error", err)
		return fmt.Errorf("failed to update journal entry status: %w", err)
	}

	if result.MatchedCount == 0 {
		return journal.ErrEntryNotFound{OperationID: operationID}
	}

	return nil
}
