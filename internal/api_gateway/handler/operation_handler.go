package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/channel-access-ledger/internal/api_gateway/middleware"
	"github.com/channel-access-ledger/internal/api_gateway/service"
	"github.com/channel-access-ledger/internal/domain/journal"
	"github.com/channel-access-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OperationHandler turns mutating requests into queued ledger operations and
// serves their outcomes from the journal
type OperationHandler struct {
	operationService service.OperationService
	logger           *slog.Logger
}

func NewOperationHandler(logger *slog.Logger, operationService service.OperationService) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
		logger:           logger,
	}
}

// RegisterChannel queues a channel registration. Only the administrator's
// registrations will be applied.
func (h *OperationHandler) RegisterChannel(c *gin.Context) {
	var req RegisterChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	h.submit(c, &shared.OperationRequest{
		Type:        shared.OperationTypeRegisterChannel,
		ChannelName: req.Name,
		Cost:        req.Cost,
	}, req.IdempotencyKey)
}

// JoinChannel queues a membership purchase for the caller
func (h *OperationHandler) JoinChannel(c *gin.Context) {
	channelID, ok := parseUintParam(c, "id", "Invalid channel ID")
	if !ok {
		return
	}

	var req JoinChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	h.submit(c, &shared.OperationRequest{
		Type:      shared.OperationTypeJoinChannel,
		ChannelID: channelID,
		Payment:   req.Payment,
	}, req.IdempotencyKey)
}

// Withdraw queues a withdrawal of the whole custodial balance
func (h *OperationHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Warn("Invalid request body", "error", err)
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	h.submit(c, &shared.OperationRequest{Type: shared.OperationTypeWithdraw}, req.IdempotencyKey)
}

func (h *OperationHandler) submit(c *gin.Context, request *shared.OperationRequest, idempotencyKey string) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	request.OperationID = uuid.New()
	request.Principal = middleware.GetPrincipal(c)
	request.IdempotencyKey = idempotencyKey
	request.CorrelationID = middleware.GetCorrelationID(c)
	request.Timestamp = time.Now().UTC()

	operationID, existing, err := h.operationService.SubmitOperation(c.Request.Context(), request)
	if err != nil {
		h.logger.Error("Failed to submit operation", "type", request.Type, "error", err)
		RespondInternalError(c)
		return
	}
	if existing != nil {
		RespondOK(c, mapJournalEntryToResponse(existing))
		return
	}

	RespondAccepted(c, OperationAcceptedResponse{
		OperationID: operationID,
		Status:      string(shared.OperationStatusPending),
	})
}

// GetByID retrieves an operation outcome, returns 404 until it is journaled
func (h *OperationHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid operation ID")
		return
	}

	entry, err := h.operationService.GetOperationByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get operation", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	if entry == nil {
		RespondNotFound(c, "Operation not found")
		return
	}

	RespondOK(c, mapJournalEntryToResponse(entry))
}

// GetByPrincipal retrieves paginated operation history for a principal
func (h *OperationHandler) GetByPrincipal(c *gin.Context) {
	principal := c.Param("principal")

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.operationService.GetOperationsByPrincipal(
		c.Request.Context(),
		principal,
		pagination.Page,
		pagination.PerPage,
	)
	if err != nil {
		h.logger.Error("Failed to get operations", "principal", principal, "error", err)
		RespondInternalError(c)
		return
	}

	operations := make([]OperationResponse, 0, len(entries))
	for _, entry := range entries {
		operations = append(operations, mapJournalEntryToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, operations, pagination.Page, pagination.PerPage, int(total))
}

// mapJournalEntryToResponse maps a journal entry to an operation response DTO
func mapJournalEntryToResponse(entry *journal.Entry) OperationResponse {
	response := OperationResponse{
		OperationID:      entry.OperationID.String(),
		Type:             string(entry.Type),
		Principal:        entry.Principal,
		ChannelID:        entry.ChannelID,
		ChannelName:      entry.ChannelName,
		Cost:             entry.Cost,
		Payment:          entry.Payment,
		MembershipID:     entry.MembershipID,
		Amount:           entry.Amount,
		CustodialBalance: entry.CustodialBalance,
		Status:           string(entry.Status),
		FailureReason:    entry.FailureReason,
		CreatedAt:        entry.CreatedAt.Format(time.RFC3339),
	}

	if entry.ProcessedAt != nil {
		response.ProcessedAt = entry.ProcessedAt.Format(time.RFC3339)
	}

	return response
}
