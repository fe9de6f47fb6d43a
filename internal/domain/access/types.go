// Package access implements the channel access ledger: an administrator registers
// priced channels, any principal may pay a channel's price to receive a permanent
// membership, and the administrator withdraws the collected funds.
//
// The Ledger owns all state and serializes every operation behind a single lock.
// Caller identity and attached payment are always passed explicitly.
package access

import (
	"context"
	"strconv"
)

// Principal identifies a caller. It is authenticated by the host before an
// operation reaches the ledger.
type Principal string

// ChannelID is assigned densely starting at 1.
type ChannelID uint64

// MembershipID is assigned densely starting at 1 and is unique across all channels.
type MembershipID uint64

func (id ChannelID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id MembershipID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Channel is a named, priced access scope. Cost is in the smallest payment unit.
type Channel struct {
	ID   ChannelID `json:"id"`
	Name string    `json:"name"`
	Cost uint64    `json:"cost"`
}

// Membership is a permanent grant of access to one channel for one principal.
type Membership struct {
	ID        MembershipID `json:"id"`
	ChannelID ChannelID    `json:"channel_id"`
	Holder    Principal    `json:"holder"`
}

// Metadata is fixed at ledger creation.
type Metadata struct {
	Administrator Principal `json:"administrator"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
}

// Summary is a point-in-time view of the ledger counters and balance.
type Summary struct {
	Metadata
	TotalChannels    uint64 `json:"total_channels"`
	TotalMemberships uint64 `json:"total_memberships"`
	CustodialBalance uint64 `json:"custodial_balance"`
}

// ChangeKind names a durable state transition.
type ChangeKind string

const (
	ChangeChannelRegistered ChangeKind = "CHANNEL_REGISTERED"
	ChangeMembershipIssued  ChangeKind = "MEMBERSHIP_ISSUED"
	ChangeFundsWithdrawn    ChangeKind = "FUNDS_WITHDRAWN"

	// A withdrawal of a non-zero amount is committed before the transfer and
	// followed by exactly one of these once the transfer outcome is known.
	ChangeWithdrawalSettled  ChangeKind = "WITHDRAWAL_SETTLED"
	ChangeWithdrawalReverted ChangeKind = "WITHDRAWAL_REVERTED"
)

// Change describes one applied transition. Counters and balance are absolute
// values after the transition.
type Change struct {
	Kind             ChangeKind  `json:"kind"`
	Caller           Principal   `json:"caller"`
	Channel          *Channel    `json:"channel,omitempty"`
	Membership       *Membership `json:"membership,omitempty"`
	Amount           uint64      `json:"amount"`
	CustodialBalance uint64      `json:"custodial_balance"`
	TotalChannels    uint64      `json:"total_channels"`
	TotalMemberships uint64      `json:"total_memberships"`
}

// Committer makes an applied change durable. It runs while the ledger lock is
// held, once for every successful mutating call (a zero withdrawal included).
// An error rolls the in-memory transition back.
//
// A withdrawal of a non-zero amount commits FUNDS_WITHDRAWN before any funds
// move, so the committer must record the pending payout with it. The transfer
// outcome is then committed as WITHDRAWAL_SETTLED or WITHDRAWAL_REVERTED.
type Committer interface {
	Commit(ctx context.Context, change Change) error
}

// FundTransferer is the host's payout primitive used by Withdraw.
type FundTransferer interface {
	Transfer(ctx context.Context, to Principal, amount uint64) error
}
