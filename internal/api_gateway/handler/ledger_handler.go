package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/channel-access-ledger/internal/api_gateway/service"
	"github.com/channel-access-ledger/internal/domain/access"
	"github.com/gin-gonic/gin"
)

// LedgerHandler serves read queries over the committed ledger state
type LedgerHandler struct {
	queryService service.LedgerQueryService
	logger       *slog.Logger
}

func NewLedgerHandler(logger *slog.Logger, queryService service.LedgerQueryService) *LedgerHandler {
	return &LedgerHandler{
		queryService: queryService,
		logger:       logger,
	}
}

// GetSummary returns ledger metadata, totals and the custodial balance
func (h *LedgerHandler) GetSummary(c *gin.Context) {
	summary, err := h.queryService.GetSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to get ledger summary", err)
		return
	}

	RespondOK(c, LedgerSummaryResponse{
		Administrator:    string(summary.Administrator),
		Name:             summary.Name,
		Symbol:           summary.Symbol,
		TotalChannels:    summary.TotalChannels,
		TotalMemberships: summary.TotalMemberships,
		CustodialBalance: summary.CustodialBalance,
	})
}

// ListChannels returns channels in id order
func (h *LedgerHandler) ListChannels(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	channels, total, err := h.queryService.ListChannels(c.Request.Context(), pagination.Page, pagination.PerPage)
	if err != nil {
		h.respondError(c, "Failed to list channels", err)
		return
	}

	response := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		response = append(response, mapChannelToResponse(ch))
	}

	RespondWithPaginatedData(c, http.StatusOK, response, pagination.Page, pagination.PerPage, int(total))
}

// GetChannel returns one channel, 404 if unknown
func (h *LedgerHandler) GetChannel(c *gin.Context) {
	id, ok := parseUintParam(c, "id", "Invalid channel ID")
	if !ok {
		return
	}

	ch, err := h.queryService.GetChannel(c.Request.Context(), access.ChannelID(id))
	if err != nil {
		h.respondError(c, "Failed to get channel", err)
		return
	}

	RespondOK(c, mapChannelToResponse(ch))
}

// HasJoined reports whether principal holds a membership of the channel.
// Unknown channels answer false.
func (h *LedgerHandler) HasJoined(c *gin.Context) {
	id, ok := parseUintParam(c, "id", "Invalid channel ID")
	if !ok {
		return
	}
	principal := c.Param("principal")

	joined, err := h.queryService.HasJoined(c.Request.Context(), access.ChannelID(id), access.Principal(principal))
	if err != nil {
		h.respondError(c, "Failed to check membership", err)
		return
	}

	RespondOK(c, MembershipStatusResponse{
		ChannelID: id,
		Principal: principal,
		HasJoined: joined,
	})
}

// GetMembership returns the channel and holder bound to a membership id
func (h *LedgerHandler) GetMembership(c *gin.Context) {
	id, ok := parseUintParam(c, "id", "Invalid membership ID")
	if !ok {
		return
	}

	m, err := h.queryService.GetMembership(c.Request.Context(), access.MembershipID(id))
	if err != nil {
		h.respondError(c, "Failed to get membership", err)
		return
	}

	RespondOK(c, MembershipResponse{
		ID:        uint64(m.ID),
		ChannelID: uint64(m.ChannelID),
		Holder:    string(m.Holder),
	})
}

func (h *LedgerHandler) respondError(c *gin.Context, msg string, err error) {
	if respondStateError(c, err) {
		return
	}
	h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
	RespondInternalError(c)
}

func mapChannelToResponse(ch *access.Channel) ChannelResponse {
	return ChannelResponse{
		ID:   uint64(ch.ID),
		Name: ch.Name,
		Cost: ch.Cost,
	}
}

// parseUintParam reads a decimal id path parameter, answering 400 when malformed
func parseUintParam(c *gin.Context, name, message string) (uint64, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		RespondBadRequest(c, message)
		return 0, false
	}
	return value, true
}
