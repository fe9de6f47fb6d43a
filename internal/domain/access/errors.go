package access

import (
	"errors"
)

// Error kinds returned by ledger operations. Every failure leaves the ledger
// state unchanged.
var (
	ErrUnauthorized        = errors.New("caller is not the ledger administrator")
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientPayment = errors.New("payment below channel cost")
	ErrTransferFailed      = errors.New("fund transfer failed")

	// ErrCommitFailed wraps a Committer error.
	ErrCommitFailed = errors.New("state change could not be committed")
)

// ErrChannelNotFound indicates an unknown channel id
type ErrChannelNotFound struct {
	ChannelID ChannelID
}

func (e ErrChannelNotFound) Error() string {
	return "channel not found: " + e.ChannelID.String()
}

// Is matches ErrNotFound and any ErrChannelNotFound with the same or a zero id.
func (e ErrChannelNotFound) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(ErrChannelNotFound)
	if !ok {
		return false
	}
	return t.ChannelID == 0 || t.ChannelID == e.ChannelID
}

// ErrMembershipNotFound indicates an unknown membership id
type ErrMembershipNotFound struct {
	MembershipID MembershipID
}

func (e ErrMembershipNotFound) Error() string {
	return "membership not found: " + e.MembershipID.String()
}

// Is matches ErrNotFound and any ErrMembershipNotFound with the same or a zero id.
func (e ErrMembershipNotFound) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(ErrMembershipNotFound)
	if !ok {
		return false
	}
	return t.MembershipID == 0 || t.MembershipID == e.MembershipID
}

// ErrLedgerNotInitialized is returned by a Repository that holds no ledger yet.
var ErrLedgerNotInitialized = errors.New("ledger state not initialized")
