package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedLedger(t *testing.T) *Ledger {
	t.Helper()
	ctx := context.Background()
	l := newTestLedger(t, acceptingTransferer(), nil)

	_, err := l.RegisterChannel(ctx, admin, "general", 1)
	require.NoError(t, err)
	_, err = l.RegisterChannel(ctx, admin, "intro", 0)
	require.NoError(t, err)
	_, err = l.JoinChannel(ctx, user, 1, 3)
	require.NoError(t, err)
	_, err = l.JoinChannel(ctx, admin, 2, 0)
	require.NoError(t, err)
	return l
}

func TestSnapshot_RoundTrip(t *testing.T) {
	original := populatedLedger(t)
	snap := original.Snapshot()

	assert.Equal(t, ChannelID(3), snap.NextChannelID)
	assert.Equal(t, MembershipID(3), snap.NextMembershipID)
	assert.Equal(t, uint64(3), snap.CustodialBalance)
	assert.Len(t, snap.Channels, 2)
	assert.Len(t, snap.Memberships, 2)

	restored, err := Restore(newTestLogger(), snap, acceptingTransferer(), nil)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot())
	assert.True(t, restored.HasJoined(1, user))
	assert.True(t, restored.HasJoined(2, admin))
	assert.False(t, restored.HasJoined(2, user))
	assert.Equal(t, admin, restored.Administrator())

	id, err := restored.RegisterChannel(context.Background(), admin, "jobs", 5)
	require.NoError(t, err)
	assert.Equal(t, ChannelID(3), id)
}

func TestSnapshot_UnorderedInput(t *testing.T) {
	snap := populatedLedger(t).Snapshot()
	snap.Channels[0], snap.Channels[1] = snap.Channels[1], snap.Channels[0]
	snap.Memberships[0], snap.Memberships[1] = snap.Memberships[1], snap.Memberships[0]

	restored, err := Restore(newTestLogger(), snap, acceptingTransferer(), nil)
	require.NoError(t, err)
	assert.Equal(t, "general", restored.Channels()[0].Name)
}

func TestRestore_RejectsCorruptSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(s *Snapshot)
	}{
		{"ChannelGap", func(s *Snapshot) { s.Channels[1].ID = 3 }},
		{"EmptyChannelName", func(s *Snapshot) { s.Channels[0].Name = "" }},
		{"ChannelCounterMismatch", func(s *Snapshot) { s.NextChannelID = 5 }},
		{"MembershipGap", func(s *Snapshot) { s.Memberships[0].ID = 4 }},
		{"MembershipUnknownChannel", func(s *Snapshot) { s.Memberships[0].ChannelID = 9 }},
		{"MembershipWithoutHolder", func(s *Snapshot) { s.Memberships[1].Holder = "" }},
		{"MembershipCounterMismatch", func(s *Snapshot) { s.NextMembershipID = 1 }},
		{"NoAdministrator", func(s *Snapshot) { s.Administrator = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := populatedLedger(t).Snapshot()
			tt.corrupt(snap)

			_, err := Restore(newTestLogger(), snap, acceptingTransferer(), nil)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	t.Run("Nil", func(t *testing.T) {
		_, err := Restore(newTestLogger(), nil, acceptingTransferer(), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestRestore_EmptyLedger(t *testing.T) {
	snap := &Snapshot{
		Metadata:         Metadata{Administrator: admin, Name: "Dappcord", Symbol: "DC"},
		NextChannelID:    1,
		NextMembershipID: 1,
	}
	l, err := Restore(newTestLogger(), snap, acceptingTransferer(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), l.TotalChannels())
	assert.Equal(t, uint64(0), l.TotalMemberships())
}
