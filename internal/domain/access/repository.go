package access

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository persists ledger state and serves read queries from it
type Repository interface {
	// LoadSnapshot returns ErrLedgerNotInitialized when no ledger was saved yet
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	SaveGenesis(ctx context.Context, meta Metadata) error
	ApplyChange(ctx context.Context, change Change) error

	GetSummary(ctx context.Context) (*Summary, error)
	GetChannel(ctx context.Context, id ChannelID) (*Channel, error)
	ListChannels(ctx context.Context, limit, offset int) ([]*Channel, error)
	GetMembership(ctx context.Context, id MembershipID) (*Membership, error)
	HasJoined(ctx context.Context, channelID ChannelID, principal Principal) (bool, error)

	WithTx(tx pgx.Tx) Repository
}
