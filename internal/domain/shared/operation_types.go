package shared

// OperationType defines the ledger operations accepted over the operation topic
type OperationType string

const (
	OperationTypeRegisterChannel OperationType = "REGISTER_CHANNEL"
	OperationTypeJoinChannel     OperationType = "JOIN_CHANNEL"
	OperationTypeWithdraw        OperationType = "WITHDRAW"
)

// IsValid reports whether t is a known operation type
func (t OperationType) IsValid() bool {
	switch t {
	case OperationTypeRegisterChannel, OperationTypeJoinChannel, OperationTypeWithdraw:
		return true
	}
	return false
}

// OperationStatus defines operation processing states
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "PENDING"
	OperationStatusProcessing OperationStatus = "PROCESSING"
	OperationStatusCompleted  OperationStatus = "COMPLETED"
	OperationStatusFailed     OperationStatus = "FAILED"
)

// IsFinal reports whether no further processing happens for the status
func (s OperationStatus) IsFinal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// FailureReason defines operation failure categories
type FailureReason string

const (
	FailureReasonUnauthorized        FailureReason = "UNAUTHORIZED"
	FailureReasonChannelNotFound     FailureReason = "CHANNEL_NOT_FOUND"
	FailureReasonInsufficientPayment FailureReason = "INSUFFICIENT_PAYMENT"
	FailureReasonInvalidArgument     FailureReason = "INVALID_ARGUMENT"
	FailureReasonTransferFailed      FailureReason = "TRANSFER_FAILED"
	FailureReasonCommitFailed        FailureReason = "COMMIT_FAILED"
	FailureReasonInvalidOperation    FailureReason = "INVALID_OPERATION"
	FailureReasonDuplicateRequest    FailureReason = "DUPLICATE_REQUEST"
	FailureReasonUnknownError        FailureReason = "UNKNOWN_ERROR"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"

	// OutboxStatusAwaitingPayout holds a withdrawal entry back from the journal
	// until its payout is settled or reverted.
	OutboxStatusAwaitingPayout OutboxStatus = "AWAITING_PAYOUT"
)
