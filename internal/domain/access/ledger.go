package access

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

type joinKey struct {
	channelID ChannelID
	principal Principal
}

// Ledger is the access ledger state machine. All methods are safe for
// concurrent use; mutations are applied one at a time.
type Ledger struct {
	mu sync.RWMutex

	meta             Metadata
	channels         map[ChannelID]Channel
	nextChannelID    ChannelID
	memberships      map[MembershipID]Membership
	nextMembershipID MembershipID
	joined           map[joinKey]struct{}
	custodialBalance uint64

	transferer FundTransferer
	committer  Committer // optional
	logger     *slog.Logger
}

// NewLedger creates an empty ledger owned by meta.Administrator.
// committer may be nil when no durability is required.
func NewLedger(logger *slog.Logger, meta Metadata, transferer FundTransferer, committer Committer) (*Ledger, error) {
	if meta.Administrator == "" {
		return nil, fmt.Errorf("%w: administrator cannot be empty", ErrInvalidArgument)
	}
	if transferer == nil {
		return nil, fmt.Errorf("%w: fund transferer is required", ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		meta:             meta,
		channels:         make(map[ChannelID]Channel),
		nextChannelID:    1,
		memberships:      make(map[MembershipID]Membership),
		nextMembershipID: 1,
		joined:           make(map[joinKey]struct{}),
		transferer:       transferer,
		committer:        committer,
		logger:           logger,
	}, nil
}

// Administrator returns the principal authorized for privileged operations.
func (l *Ledger) Administrator() Principal {
	return l.meta.Administrator
}

// Name returns the ledger display name.
func (l *Ledger) Name() string {
	return l.meta.Name
}

// Symbol returns the ledger display symbol.
func (l *Ledger) Symbol() string {
	return l.meta.Symbol
}

// RegisterChannel adds a channel priced at cost. Only the administrator may call it.
func (l *Ledger) RegisterChannel(ctx context.Context, caller Principal, name string, cost uint64) (ChannelID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.meta.Administrator {
		return 0, ErrUnauthorized
	}
	if name == "" {
		return 0, fmt.Errorf("%w: channel name cannot be empty", ErrInvalidArgument)
	}

	channel := Channel{ID: l.nextChannelID, Name: name, Cost: cost}
	l.channels[channel.ID] = channel
	l.nextChannelID++

	err := l.commit(ctx, Change{
		Kind:    ChangeChannelRegistered,
		Caller:  caller,
		Channel: &channel,
	})
	if err != nil {
		delete(l.channels, channel.ID)
		l.nextChannelID--
		l.logger.Warn("Rolled back channel registration", "channel_id", channel.ID, "error", err)
		return 0, fmt.Errorf("%w: channel registration: %w", ErrCommitFailed, err)
	}

	l.logger.Debug("Channel registered", "channel_id", channel.ID, "name", name, "cost", cost)
	return channel.ID, nil
}

// GetChannel returns the channel with the given id.
func (l *Ledger) GetChannel(id ChannelID) (Channel, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	channel, ok := l.channels[id]
	if !ok {
		return Channel{}, ErrChannelNotFound{ChannelID: id}
	}
	return channel, nil
}

// Channels returns all channels in id order.
func (l *Ledger) Channels() []Channel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	channels := make([]Channel, 0, len(l.channels))
	for id := ChannelID(1); id < l.nextChannelID; id++ {
		channels = append(channels, l.channels[id])
	}
	return channels
}

// TotalChannels returns the number of registered channels.
func (l *Ledger) TotalChannels() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(l.nextChannelID - 1)
}

// JoinChannel accepts payment from caller and issues a new membership in the
// channel. Payments above the channel cost are retained. A principal may join
// the same channel more than once; each call issues a distinct membership.
func (l *Ledger) JoinChannel(ctx context.Context, caller Principal, channelID ChannelID, payment uint64) (MembershipID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller == "" {
		return 0, fmt.Errorf("%w: caller cannot be empty", ErrInvalidArgument)
	}
	channel, ok := l.channels[channelID]
	if !ok {
		return 0, ErrChannelNotFound{ChannelID: channelID}
	}
	if payment < channel.Cost {
		return 0, fmt.Errorf("%w: channel %d costs %d, got %d", ErrInsufficientPayment, channelID, channel.Cost, payment)
	}
	if payment > math.MaxUint64-l.custodialBalance {
		return 0, fmt.Errorf("%w: custodial balance would overflow", ErrInvalidArgument)
	}

	key := joinKey{channelID: channelID, principal: caller}
	_, hadJoined := l.joined[key]

	membership := Membership{ID: l.nextMembershipID, ChannelID: channelID, Holder: caller}
	l.custodialBalance += payment
	l.memberships[membership.ID] = membership
	l.joined[key] = struct{}{}
	l.nextMembershipID++

	err := l.commit(ctx, Change{
		Kind:       ChangeMembershipIssued,
		Caller:     caller,
		Channel:    &channel,
		Membership: &membership,
		Amount:     payment,
	})
	if err != nil {
		l.nextMembershipID--
		delete(l.memberships, membership.ID)
		if !hadJoined {
			delete(l.joined, key)
		}
		l.custodialBalance -= payment
		l.logger.Warn("Rolled back membership issuance", "membership_id", membership.ID, "error", err)
		return 0, fmt.Errorf("%w: membership: %w", ErrCommitFailed, err)
	}

	l.logger.Debug("Membership issued",
		"membership_id", membership.ID,
		"channel_id", channelID,
		"holder", caller,
		"payment", payment,
	)
	return membership.ID, nil
}

// HasJoined reports whether principal holds any membership in the channel.
// Unknown channels report false.
func (l *Ledger) HasJoined(channelID ChannelID, principal Principal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.joined[joinKey{channelID: channelID, principal: principal}]
	return ok
}

// GetMembership returns the membership with the given id.
func (l *Ledger) GetMembership(id MembershipID) (Membership, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	membership, ok := l.memberships[id]
	if !ok {
		return Membership{}, ErrMembershipNotFound{MembershipID: id}
	}
	return membership, nil
}

// TotalMemberships returns the number of memberships ever issued.
func (l *Ledger) TotalMemberships() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(l.nextMembershipID - 1)
}

// CustodialBalance returns the funds currently held by the ledger.
func (l *Ledger) CustodialBalance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.custodialBalance
}

// Summary returns the metadata, counters and balance in one consistent read.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summary{
		Metadata:         l.meta,
		TotalChannels:    uint64(l.nextChannelID - 1),
		TotalMemberships: uint64(l.nextMembershipID - 1),
		CustodialBalance: l.custodialBalance,
	}
}

// Withdraw pays the whole custodial balance to the administrator and returns
// the amount paid. An empty balance is a successful no-op returning 0.
//
// The zeroed balance is committed before the transfer, so a failed commit
// moves no funds. If the transfer fails the balance is restored, the reversal
// is committed and ErrTransferFailed is returned.
func (l *Ledger) Withdraw(ctx context.Context, caller Principal) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.meta.Administrator {
		return 0, ErrUnauthorized
	}

	amount := l.custodialBalance
	l.custodialBalance = 0
	if err := l.commit(ctx, Change{Kind: ChangeFundsWithdrawn, Caller: caller, Amount: amount}); err != nil {
		l.custodialBalance = amount
		l.logger.Warn("Rolled back withdrawal", "amount", amount, "error", err)
		return 0, fmt.Errorf("%w: withdrawal of %d: %w", ErrCommitFailed, amount, err)
	}
	if amount == 0 {
		l.logger.Debug("Nothing to withdraw", "to", caller)
		return 0, nil
	}

	if err := l.transferer.Transfer(ctx, caller, amount); err != nil {
		l.custodialBalance = amount
		if cerr := l.commit(ctx, Change{Kind: ChangeWithdrawalReverted, Caller: caller, Amount: amount}); cerr != nil {
			// The committed state still holds the payout as pending. Keep memory
			// in line with it; the payout is retried from there.
			l.custodialBalance = 0
			l.logger.Error("Withdrawal transfer failed and reversal not committed",
				"amount", amount,
				"transfer_error", err,
				"error", cerr,
			)
			return 0, fmt.Errorf("%w: reversal of withdrawal of %d: %w", ErrCommitFailed, amount, cerr)
		}
		l.logger.Warn("Withdrawal transfer failed, balance restored", "amount", amount, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	if err := l.commit(ctx, Change{Kind: ChangeWithdrawalSettled, Caller: caller, Amount: amount}); err != nil {
		// Funds moved and the zero balance is durable. Only the payout record
		// stays pending, and it is published again on recovery.
		l.logger.Error("Withdrawal paid but settlement not committed", "amount", amount, "error", err)
	}

	l.logger.Debug("Funds withdrawn", "to", caller, "amount", amount)
	return amount, nil
}

// commit fills in the absolute counters and hands the change to the committer.
// Callers must hold l.mu.
func (l *Ledger) commit(ctx context.Context, change Change) error {
	if l.committer == nil {
		return nil
	}
	change.CustodialBalance = l.custodialBalance
	change.TotalChannels = uint64(l.nextChannelID - 1)
	change.TotalMemberships = uint64(l.nextMembershipID - 1)
	return l.committer.Commit(ctx, change)
}
