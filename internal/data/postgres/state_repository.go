// Package postgres provides PostgreSQL implementations of the domain repositories.
// Ledger state and the operation outbox live in the same database so a change
// and its outbox message commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/channel-access-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// StateRepository implements the access.Repository interface for PostgreSQL
type StateRepository struct {
	querier persistence.Querier // *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewStateRepository creates a new PostgreSQL ledger state repository
func NewStateRepository(logger *slog.Logger, db *persistence.PostgresDB) access.Repository {
	return &StateRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *StateRepository) WithTx(tx pgx.Tx) access.Repository {
	return &StateRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const selectSummaryQuery = `
		SELECT administrator, name, symbol, next_channel_id, next_membership_id, custodial_balance::text
		FROM ledger_meta
		WHERE id = 1
	`

type metaRow struct {
	summary          access.Summary
	nextChannelID    int64
	nextMembershipID int64
}

func (r *StateRepository) loadMeta(ctx context.Context) (*metaRow, error) {
	var (
		row     metaRow
		admin   string
		balance string
	)
	err := r.querier.QueryRow(ctx, selectSummaryQuery).Scan(
		&admin,
		&row.summary.Name,
		&row.summary.Symbol,
		&row.nextChannelID,
		&row.nextMembershipID,
		&balance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrLedgerNotInitialized
		}
		r.logger.Error("Failed to load ledger metadata", "error", err)
		return nil, fmt.Errorf("failed to load ledger metadata: %w", err)
	}

	row.summary.Administrator = access.Principal(admin)
	row.summary.CustodialBalance, err = parseAmount(balance)
	if err != nil {
		return nil, err
	}
	row.summary.TotalChannels = uint64(row.nextChannelID - 1)
	row.summary.TotalMemberships = uint64(row.nextMembershipID - 1)
	return &row, nil
}

// LoadSnapshot reads the whole ledger. Returns access.ErrLedgerNotInitialized
// when no genesis row exists.
func (r *StateRepository) LoadSnapshot(ctx context.Context) (*access.Snapshot, error) {
	meta, err := r.loadMeta(ctx)
	if err != nil {
		return nil, err
	}

	channels, err := r.queryChannels(ctx, `
		SELECT id, name, cost::text
		FROM channels
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}

	rows, err := r.querier.Query(ctx, `
		SELECT id, channel_id, holder
		FROM memberships
		ORDER BY id ASC
	`)
	if err != nil {
		r.logger.Error("Failed to load memberships", "error", err)
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	defer rows.Close()

	var memberships []access.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			r.logger.Error("Failed to scan membership", "error", err)
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over memberships: %w", err)
	}

	snap := &access.Snapshot{
		Metadata:         meta.summary.Metadata,
		NextChannelID:    access.ChannelID(meta.nextChannelID),
		NextMembershipID: access.MembershipID(meta.nextMembershipID),
		CustodialBalance: meta.summary.CustodialBalance,
		Memberships:      memberships,
	}
	for _, ch := range channels {
		snap.Channels = append(snap.Channels, *ch)
	}
	return snap, nil
}

// SaveGenesis stores the metadata of a new ledger. An existing ledger is left untouched.
func (r *StateRepository) SaveGenesis(ctx context.Context, meta access.Metadata) error {
	query := `
		INSERT INTO ledger_meta (id, administrator, name, symbol)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.querier.Exec(ctx, query, string(meta.Administrator), meta.Name, meta.Symbol); err != nil {
		r.logger.Error("Failed to save ledger genesis", "error", err)
		return fmt.Errorf("failed to save ledger genesis: %w", err)
	}
	return nil
}

// ApplyChange writes the rows created by change and the absolute counters after it
func (r *StateRepository) ApplyChange(ctx context.Context, change access.Change) error {
	switch change.Kind {
	case access.ChangeChannelRegistered:
		if change.Channel == nil {
			return fmt.Errorf("%w: channel change without channel", access.ErrInvalidArgument)
		}
		query := `
			INSERT INTO channels (id, name, cost)
			VALUES ($1, $2, $3::numeric)
		`
		ch := change.Channel
		if _, err := r.querier.Exec(ctx, query, int64(ch.ID), ch.Name, formatAmount(ch.Cost)); err != nil {
			r.logger.Error("Failed to insert channel", "channel_id", ch.ID, "error", err)
			return fmt.Errorf("failed to insert channel: %w", err)
		}
	case access.ChangeMembershipIssued:
		if change.Membership == nil {
			return fmt.Errorf("%w: membership change without membership", access.ErrInvalidArgument)
		}
		query := `
			INSERT INTO memberships (id, channel_id, holder, payment)
			VALUES ($1, $2, $3, $4::numeric)
		`
		m := change.Membership
		if _, err := r.querier.Exec(ctx, query, int64(m.ID), int64(m.ChannelID), string(m.Holder), formatAmount(change.Amount)); err != nil {
			r.logger.Error("Failed to insert membership", "membership_id", m.ID, "error", err)
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	case access.ChangeFundsWithdrawn, access.ChangeWithdrawalReverted:
	default:
		return fmt.Errorf("%w: unknown change kind %q", access.ErrInvalidArgument, change.Kind)
	}

	query := `
		UPDATE ledger_meta
		SET next_channel_id = $1, next_membership_id = $2, custodial_balance = $3::numeric, updated_at = NOW()
		WHERE id = 1
	`
	result, err := r.querier.Exec(ctx, query,
		int64(change.TotalChannels+1),
		int64(change.TotalMemberships+1),
		formatAmount(change.CustodialBalance),
	)
	if err != nil {
		r.logger.Error("Failed to update ledger counters", "error", err)
		return fmt.Errorf("failed to update ledger counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return access.ErrLedgerNotInitialized
	}
	return nil
}

// GetSummary returns metadata, counters and the custodial balance
func (r *StateRepository) GetSummary(ctx context.Context) (*access.Summary, error) {
	meta, err := r.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	return &meta.summary, nil
}

// GetChannel retrieves a channel by id
func (r *StateRepository) GetChannel(ctx context.Context, id access.ChannelID) (*access.Channel, error) {
	query := `
		SELECT id, name, cost::text
		FROM channels
		WHERE id = $1
	`
	ch, err := scanChannel(r.querier.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrChannelNotFound{ChannelID: id}
		}
		r.logger.Error("Failed to get channel", "channel_id", id, "error", err)
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

// ListChannels returns channels in id order
func (r *StateRepository) ListChannels(ctx context.Context, limit, offset int) ([]*access.Channel, error) {
	return r.queryChannels(ctx, `
		SELECT id, name, cost::text
		FROM channels
		ORDER BY id ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *StateRepository) queryChannels(ctx context.Context, query string, args ...interface{}) ([]*access.Channel, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query channels", "error", err)
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*access.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			r.logger.Error("Failed to scan channel", "error", err)
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over channels: %w", err)
	}
	return channels, nil
}

// GetMembership retrieves a membership by id
func (r *StateRepository) GetMembership(ctx context.Context, id access.MembershipID) (*access.Membership, error) {
	query := `
		SELECT id, channel_id, holder
		FROM memberships
		WHERE id = $1
	`
	m, err := scanMembership(r.querier.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrMembershipNotFound{MembershipID: id}
		}
		r.logger.Error("Failed to get membership", "membership_id", id, "error", err)
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// HasJoined reports whether principal holds any membership in the channel
func (r *StateRepository) HasJoined(ctx context.Context, channelID access.ChannelID, principal access.Principal) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE channel_id = $1 AND holder = $2)
	`
	var joined bool
	if err := r.querier.QueryRow(ctx, query, int64(channelID), string(principal)).Scan(&joined); err != nil {
		r.logger.Error("Failed to check membership", "channel_id", channelID, "error", err)
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return joined, nil
}

func scanChannel(row pgx.Row) (*access.Channel, error) {
	var (
		id   int64
		name string
		cost string
	)
	if err := row.Scan(&id, &name, &cost); err != nil {
		return nil, err
	}
	amount, err := parseAmount(cost)
	if err != nil {
		return nil, err
	}
	return &access.Channel{ID: access.ChannelID(id), Name: name, Cost: amount}, nil
}

func scanMembership(row pgx.Row) (*access.Membership, error) {
	var (
		id        int64
		channelID int64
		holder    string
	)
	if err := row.Scan(&id, &channelID, &holder); err != nil {
		return nil, err
	}
	return &access.Membership{
		ID:        access.MembershipID(id),
		ChannelID: access.ChannelID(channelID),
		Holder:    access.Principal(holder),
	}, nil
}
