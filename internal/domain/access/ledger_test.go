package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	admin = Principal("0xdeployer")
	user  = Principal("0xuser")
)

type MockTransferer struct {
	mock.Mock
}

func (m *MockTransferer) Transfer(ctx context.Context, to Principal, amount uint64) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}

type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, change Change) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, transferer FundTransferer, committer Committer) *Ledger {
	t.Helper()
	l, err := NewLedger(newTestLogger(), Metadata{Administrator: admin, Name: "Dappcord", Symbol: "DC"}, transferer, committer)
	require.NoError(t, err)
	return l
}

func acceptingTransferer() *MockTransferer {
	m := &MockTransferer{}
	m.On("Transfer", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return m
}

func TestNewLedger(t *testing.T) {
	t.Run("Metadata", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		assert.Equal(t, admin, l.Administrator())
		assert.Equal(t, "Dappcord", l.Name())
		assert.Equal(t, "DC", l.Symbol())
		assert.Equal(t, uint64(0), l.TotalChannels())
		assert.Equal(t, uint64(0), l.TotalMemberships())
		assert.Equal(t, uint64(0), l.CustodialBalance())
	})

	t.Run("EmptyAdministrator", func(t *testing.T) {
		_, err := NewLedger(newTestLogger(), Metadata{Name: "x"}, acceptingTransferer(), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("MissingTransferer", func(t *testing.T) {
		_, err := NewLedger(newTestLogger(), Metadata{Administrator: admin}, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestLedger_RegisterChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("SequentialIDs", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		names := []string{"general", "intro", "jobs", "random"}
		for i, name := range names {
			id, err := l.RegisterChannel(ctx, admin, name, uint64(i))
			require.NoError(t, err)
			assert.Equal(t, ChannelID(i+1), id)
		}
		assert.Equal(t, uint64(len(names)), l.TotalChannels())
		assert.Len(t, l.Channels(), len(names))
		assert.Equal(t, "jobs", l.Channels()[2].Name)
	})

	t.Run("ReturnsChannelAttributes", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)

		ch, err := l.GetChannel(1)
		require.NoError(t, err)
		assert.Equal(t, Channel{ID: 1, Name: "general", Cost: 1}, ch)
	})

	t.Run("FreeChannelAllowed", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		id, err := l.RegisterChannel(ctx, admin, "lobby", 0)
		require.NoError(t, err)
		assert.Equal(t, ChannelID(1), id)
	})

	t.Run("DuplicateNamesAllowed", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)
		id, err := l.RegisterChannel(ctx, admin, "general", 2)
		require.NoError(t, err)
		assert.Equal(t, ChannelID(2), id)
	})

	t.Run("NonAdministratorUnauthorized", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		before := l.Snapshot()

		_, err := l.RegisterChannel(ctx, user, "general", 1)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, before, l.Snapshot())
	})

	t.Run("EmptyName", func(t *testing.T) {
		l := newTestLedger(t, acceptingTransferer(), nil)
		_, err := l.RegisterChannel(ctx, admin, "", 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, uint64(0), l.TotalChannels())
	})

	t.Run("CommitFailureRollsBack", func(t *testing.T) {
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		l := newTestLedger(t, acceptingTransferer(), committer)

		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, uint64(0), l.TotalChannels())
		_, err = l.GetChannel(1)
		assert.ErrorIs(t, err, ErrNotFound)

		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Once()
		id, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)
		assert.Equal(t, ChannelID(1), id)
		committer.AssertExpectations(t)
	})

	t.Run("CommitReceivesAbsoluteCounters", func(t *testing.T) {
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeChannelRegistered &&
				c.Caller == admin &&
				c.Channel != nil && c.Channel.ID == 1 && c.Channel.Name == "general" &&
				c.TotalChannels == 1 && c.TotalMemberships == 0
		})).Return(nil).Once()
		l := newTestLedger(t, acceptingTransferer(), committer)

		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)
		committer.AssertExpectations(t)
	})
}

func TestLedger_GetChannel(t *testing.T) {
	l := newTestLedger(t, acceptingTransferer(), nil)

	_, err := l.GetChannel(7)
	assert.ErrorIs(t, err, ErrNotFound)
	var notFound ErrChannelNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, ChannelID(7), notFound.ChannelID)
}

func TestLedger_JoinChannel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, committer Committer) *Ledger {
		l := newTestLedger(t, acceptingTransferer(), committer)
		_, err := l.RegisterChannel(ctx, admin, "general", 10)
		require.NoError(t, err)
		return l
	}

	t.Run("JoinsTheUser", func(t *testing.T) {
		l := setup(t, nil)
		id, err := l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, MembershipID(1), id)
		assert.True(t, l.HasJoined(1, user))
		assert.Equal(t, uint64(1), l.TotalMemberships())
		assert.Equal(t, uint64(10), l.CustodialBalance())

		m, err := l.GetMembership(id)
		require.NoError(t, err)
		assert.Equal(t, Membership{ID: 1, ChannelID: 1, Holder: user}, m)
	})

	t.Run("OverpaymentRetained", func(t *testing.T) {
		l := setup(t, nil)
		_, err := l.JoinChannel(ctx, user, 1, 25)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), l.CustodialBalance())
	})

	t.Run("RepeatJoinIssuesNewMembership", func(t *testing.T) {
		l := setup(t, nil)
		first, err := l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		second, err := l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
		assert.True(t, l.HasJoined(1, user))
		assert.Equal(t, uint64(2), l.TotalMemberships())
	})

	t.Run("MembershipIDsGlobalAcrossChannels", func(t *testing.T) {
		l := setup(t, nil)
		_, err := l.RegisterChannel(ctx, admin, "intro", 0)
		require.NoError(t, err)

		a, err := l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		b, err := l.JoinChannel(ctx, user, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, MembershipID(1), a)
		assert.Equal(t, MembershipID(2), b)
		assert.True(t, l.HasJoined(2, user))
		assert.False(t, l.HasJoined(2, admin))
	})

	t.Run("InsufficientPayment", func(t *testing.T) {
		l := setup(t, nil)
		before := l.Snapshot()

		_, err := l.JoinChannel(ctx, user, 1, 9)
		assert.ErrorIs(t, err, ErrInsufficientPayment)
		assert.Equal(t, before, l.Snapshot())
		assert.False(t, l.HasJoined(1, user))
	})

	t.Run("UnknownChannel", func(t *testing.T) {
		l := setup(t, nil)
		_, err := l.JoinChannel(ctx, user, 2, 100)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrChannelNotFound{ChannelID: 2})
		assert.Equal(t, uint64(0), l.TotalMemberships())
	})

	t.Run("EmptyCaller", func(t *testing.T) {
		l := setup(t, nil)
		_, err := l.JoinChannel(ctx, "", 1, 10)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("BalanceOverflow", func(t *testing.T) {
		l := setup(t, nil)
		_, err := l.JoinChannel(ctx, user, 1, math.MaxUint64)
		require.NoError(t, err)
		before := l.Snapshot()

		_, err = l.JoinChannel(ctx, user, 1, 10)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, before, l.Snapshot())
	})

	t.Run("CommitFailureRollsBack", func(t *testing.T) {
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeChannelRegistered
		})).Return(nil)
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeMembershipIssued
		})).Return(errors.New("db down"))
		l := setup(t, committer)
		before := l.Snapshot()

		_, err := l.JoinChannel(ctx, user, 1, 10)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, before, l.Snapshot())
		assert.False(t, l.HasJoined(1, user))
	})

	t.Run("CommitFailureKeepsEarlierJoin", func(t *testing.T) {
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Twice()
		committer.On("Commit", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		l := setup(t, committer)

		_, err := l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		_, err = l.JoinChannel(ctx, user, 1, 10)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.True(t, l.HasJoined(1, user))
		assert.Equal(t, uint64(1), l.TotalMemberships())
		assert.Equal(t, uint64(10), l.CustodialBalance())
	})
}

func TestLedger_HasJoined(t *testing.T) {
	l := newTestLedger(t, acceptingTransferer(), nil)
	assert.False(t, l.HasJoined(99, user))
}

func TestLedger_GetMembership(t *testing.T) {
	l := newTestLedger(t, acceptingTransferer(), nil)
	_, err := l.GetMembership(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrMembershipNotFound{})
}

func TestLedger_Withdraw(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, transferer FundTransferer, committer Committer) *Ledger {
		l := newTestLedger(t, transferer, committer)
		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)
		_, err = l.JoinChannel(ctx, user, 1, 10)
		require.NoError(t, err)
		return l
	}

	t.Run("TransfersFullBalance", func(t *testing.T) {
		transferer := &MockTransferer{}
		transferer.On("Transfer", mock.Anything, admin, uint64(10)).Return(nil).Once()
		l := setup(t, transferer, nil)

		amount, err := l.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), amount)
		assert.Equal(t, uint64(0), l.CustodialBalance())

		amount, err = l.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), amount)
		transferer.AssertExpectations(t)
	})

	t.Run("NonAdministratorUnauthorized", func(t *testing.T) {
		transferer := &MockTransferer{}
		l := setup(t, transferer, nil)

		_, err := l.Withdraw(ctx, user)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, uint64(10), l.CustodialBalance())
		transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TransferFailureRestoresBalance", func(t *testing.T) {
		transferer := &MockTransferer{}
		transferer.On("Transfer", mock.Anything, admin, uint64(10)).Return(errors.New("recipient rejected funds")).Once()
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Twice()
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeFundsWithdrawn && c.Amount == 10 && c.CustodialBalance == 0
		})).Return(nil).Once()
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeWithdrawalReverted && c.Amount == 10 && c.CustodialBalance == 10
		})).Return(nil).Once()
		l := setup(t, transferer, committer)
		before := l.Snapshot()

		_, err := l.Withdraw(ctx, admin)
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Contains(t, err.Error(), "recipient rejected funds")
		assert.Equal(t, before, l.Snapshot())
		committer.AssertExpectations(t)
	})

	t.Run("EmptyBalanceCommitsWithoutTransfer", func(t *testing.T) {
		transferer := &MockTransferer{}
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeFundsWithdrawn && c.Amount == 0 && c.CustodialBalance == 0
		})).Return(nil).Once()
		l := newTestLedger(t, transferer, committer)

		amount, err := l.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), amount)
		transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
		committer.AssertExpectations(t)
	})

	t.Run("CommitFailureMovesNoFunds", func(t *testing.T) {
		transferer := &MockTransferer{}
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Twice()
		committer.On("Commit", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		l := setup(t, transferer, committer)

		_, err := l.Withdraw(ctx, admin)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, uint64(10), l.CustodialBalance())
		transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ReversalCommitFailureKeepsZeroBalance", func(t *testing.T) {
		transferer := &MockTransferer{}
		transferer.On("Transfer", mock.Anything, admin, uint64(10)).Return(errors.New("recipient rejected funds")).Once()
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Times(3)
		committer.On("Commit", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		l := setup(t, transferer, committer)

		_, err := l.Withdraw(ctx, admin)
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.NotErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, uint64(0), l.CustodialBalance())
	})

	t.Run("SettlementCommitFailureStillReportsPayout", func(t *testing.T) {
		transferer := acceptingTransferer()
		committer := &MockCommitter{}
		committer.On("Commit", mock.Anything, mock.Anything).Return(nil).Times(3)
		committer.On("Commit", mock.Anything, mock.MatchedBy(func(c Change) bool {
			return c.Kind == ChangeWithdrawalSettled
		})).Return(errors.New("db down")).Once()
		l := setup(t, transferer, committer)

		amount, err := l.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), amount)
		assert.Equal(t, uint64(0), l.CustodialBalance())
	})
}

// durableLedger fails the first commit of failKind and totals the funds it
// transfers across restarts.
type durableLedger struct {
	failKind ChangeKind
	failed   bool
	paid     uint64
}

func (d *durableLedger) Commit(_ context.Context, change Change) error {
	if change.Kind == d.failKind && !d.failed {
		d.failed = true
		return errors.New("db down")
	}
	return nil
}

func (d *durableLedger) Transfer(_ context.Context, _ Principal, amount uint64) error {
	d.paid += amount
	return nil
}

func TestLedger_WithdrawAfterRestart(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, store *durableLedger) (*Ledger, *Snapshot) {
		t.Helper()
		l := newTestLedger(t, store, store)
		_, err := l.RegisterChannel(ctx, admin, "general", 1)
		require.NoError(t, err)
		_, err = l.JoinChannel(ctx, user, 1, 11)
		require.NoError(t, err)
		return l, l.Snapshot()
	}

	t.Run("FailedCommitPaysOnce", func(t *testing.T) {
		store := &durableLedger{failKind: ChangeFundsWithdrawn}
		l, committed := run(t, store)

		_, err := l.Withdraw(ctx, admin)
		require.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, uint64(0), store.paid)

		restarted, err := Restore(newTestLogger(), committed, store, store)
		require.NoError(t, err)
		amount, err := restarted.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), amount)
		assert.Equal(t, uint64(11), store.paid)
	})

	t.Run("UnsettledPayoutIsNotPaidAgain", func(t *testing.T) {
		store := &durableLedger{failKind: ChangeWithdrawalSettled}
		l, _ := run(t, store)

		amount, err := l.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), amount)
		committed := l.Snapshot()

		restarted, err := Restore(newTestLogger(), committed, store, store)
		require.NoError(t, err)
		amount, err = restarted.Withdraw(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), amount)
		assert.Equal(t, uint64(11), store.paid)
	})
}

func TestLedger_EndToEnd(t *testing.T) {
	ctx := context.Background()
	transferer := &MockTransferer{}
	transferer.On("Transfer", mock.Anything, admin, uint64(11)).Return(nil).Once()
	l := newTestLedger(t, transferer, nil)

	_, err := l.RegisterChannel(ctx, admin, "general", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l.TotalChannels())
	ch, err := l.GetChannel(1)
	require.NoError(t, err)
	assert.Equal(t, Channel{ID: 1, Name: "general", Cost: 1}, ch)

	_, err = l.JoinChannel(ctx, user, 1, 1)
	require.NoError(t, err)
	assert.True(t, l.HasJoined(1, user))
	assert.Equal(t, uint64(1), l.TotalMemberships())
	assert.Equal(t, uint64(1), l.CustodialBalance())

	_, err = l.JoinChannel(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), l.TotalMemberships())
	assert.Equal(t, uint64(11), l.CustodialBalance())

	amount, err := l.Withdraw(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), amount)
	assert.Equal(t, uint64(0), l.CustodialBalance())

	summary := l.Summary()
	assert.Equal(t, uint64(1), summary.TotalChannels)
	assert.Equal(t, uint64(2), summary.TotalMemberships)
	assert.Equal(t, admin, summary.Administrator)
	transferer.AssertExpectations(t)
}

func TestLedger_ConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, acceptingTransferer(), nil)
	_, err := l.RegisterChannel(ctx, admin, "general", 1)
	require.NoError(t, err)

	const joiners = 50
	var wg sync.WaitGroup
	ids := make(chan MembershipID, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := l.JoinChannel(ctx, user, 1, 2)
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[MembershipID]bool)
	for id := range ids {
		assert.False(t, seen[id], "membership id issued twice: %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, joiners)
	assert.Equal(t, uint64(joiners), l.TotalMemberships())
	assert.Equal(t, uint64(2*joiners), l.CustodialBalance())
}
