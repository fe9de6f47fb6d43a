package access

import (
	"fmt"
	"log/slog"
	"sort"
)

// Snapshot is the persisted layout of a ledger. The hasJoined relation is
// derived from Memberships on restore.
type Snapshot struct {
	Metadata
	Channels         []Channel    `json:"channels"`
	Memberships      []Membership `json:"memberships"`
	NextChannelID    ChannelID    `json:"next_channel_id"`
	NextMembershipID MembershipID `json:"next_membership_id"`
	CustodialBalance uint64       `json:"custodial_balance"`
}

// Snapshot returns a copy of the full ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &Snapshot{
		Metadata:         l.meta,
		Channels:         make([]Channel, 0, len(l.channels)),
		Memberships:      make([]Membership, 0, len(l.memberships)),
		NextChannelID:    l.nextChannelID,
		NextMembershipID: l.nextMembershipID,
		CustodialBalance: l.custodialBalance,
	}
	for id := ChannelID(1); id < l.nextChannelID; id++ {
		snap.Channels = append(snap.Channels, l.channels[id])
	}
	for id := MembershipID(1); id < l.nextMembershipID; id++ {
		snap.Memberships = append(snap.Memberships, l.memberships[id])
	}
	return snap
}

// Restore rebuilds a ledger from a snapshot after checking every invariant.
// A corrupt snapshot fails with ErrInvalidArgument.
func Restore(logger *slog.Logger, snap *Snapshot, transferer FundTransferer, committer Committer) (*Ledger, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidArgument)
	}

	l, err := NewLedger(logger, snap.Metadata, transferer, committer)
	if err != nil {
		return nil, err
	}

	channels := append([]Channel(nil), snap.Channels...)
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	for i, ch := range channels {
		if ch.ID != ChannelID(i+1) {
			return nil, fmt.Errorf("%w: channel ids are not dense, expected %d got %d", ErrInvalidArgument, i+1, ch.ID)
		}
		if ch.Name == "" {
			return nil, fmt.Errorf("%w: channel %d has an empty name", ErrInvalidArgument, ch.ID)
		}
		l.channels[ch.ID] = ch
	}
	if snap.NextChannelID != ChannelID(len(channels)+1) {
		return nil, fmt.Errorf("%w: next channel id %d does not match %d channels", ErrInvalidArgument, snap.NextChannelID, len(channels))
	}
	l.nextChannelID = snap.NextChannelID

	memberships := append([]Membership(nil), snap.Memberships...)
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].ID < memberships[j].ID })
	for i, m := range memberships {
		if m.ID != MembershipID(i+1) {
			return nil, fmt.Errorf("%w: membership ids are not dense, expected %d got %d", ErrInvalidArgument, i+1, m.ID)
		}
		if _, ok := l.channels[m.ChannelID]; !ok {
			return nil, fmt.Errorf("%w: membership %d references unknown channel %d", ErrInvalidArgument, m.ID, m.ChannelID)
		}
		if m.Holder == "" {
			return nil, fmt.Errorf("%w: membership %d has no holder", ErrInvalidArgument, m.ID)
		}
		l.memberships[m.ID] = m
		l.joined[joinKey{channelID: m.ChannelID, principal: m.Holder}] = struct{}{}
	}
	if snap.NextMembershipID != MembershipID(len(memberships)+1) {
		return nil, fmt.Errorf("%w: next membership id %d does not match %d memberships", ErrInvalidArgument, snap.NextMembershipID, len(memberships))
	}
	l.nextMembershipID = snap.NextMembershipID
	l.custodialBalance = snap.CustodialBalance

	l.logger.Info("Ledger restored",
		"channels", len(channels),
		"memberships", len(memberships),
		"custodial_balance", snap.CustodialBalance,
	)
	return l, nil
}
