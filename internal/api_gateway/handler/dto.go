package handler

// RegisterChannelRequest represents a request to register a new channel.
// An empty name is queued and rejected by the ledger.
type RegisterChannelRequest struct {
	Name           string `json:"name" binding:"max=256"`
	Cost           uint64 `json:"cost"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// JoinChannelRequest carries the payment attached to a join
type JoinChannelRequest struct {
	Payment        uint64 `json:"payment"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// WithdrawRequest is optional; an empty body is a valid withdrawal
type WithdrawRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ChannelResponse represents a channel in API responses
type ChannelResponse struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Cost uint64 `json:"cost"`
}

// MembershipResponse represents a membership in API responses
type MembershipResponse struct {
	ID        uint64 `json:"id"`
	ChannelID uint64 `json:"channel_id"`
	Holder    string `json:"holder"`
}

// MembershipStatusResponse answers whether a principal joined a channel
type MembershipStatusResponse struct {
	ChannelID uint64 `json:"channel_id"`
	Principal string `json:"principal"`
	HasJoined bool   `json:"has_joined"`
}

// LedgerSummaryResponse represents the ledger metadata and counters
type LedgerSummaryResponse struct {
	Administrator    string `json:"administrator"`
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	TotalChannels    uint64 `json:"total_channels"`
	TotalMemberships uint64 `json:"total_memberships"`
	CustodialBalance uint64 `json:"custodial_balance"`
}

// OperationAcceptedResponse is returned when an operation was queued
type OperationAcceptedResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

// OperationResponse represents a journaled operation in API responses
type OperationResponse struct {
	OperationID      string `json:"operation_id"`
	Type             string `json:"type"`
	Principal        string `json:"principal"`
	ChannelID        uint64 `json:"channel_id,omitempty"`
	ChannelName      string `json:"channel_name,omitempty"`
	Cost             uint64 `json:"cost,omitempty"`
	Payment          uint64 `json:"payment,omitempty"`
	MembershipID     uint64 `json:"membership_id,omitempty"`
	Amount           uint64 `json:"amount,omitempty"`
	CustodialBalance uint64 `json:"custodial_balance"`
	Status           string `json:"status"`
	FailureReason    string `json:"failure_reason,omitempty"`
	CreatedAt        string `json:"created_at"`
	ProcessedAt      string `json:"processed_at,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
