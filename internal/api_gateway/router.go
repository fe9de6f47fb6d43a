package api_gateway

import (
	"log/slog"

	"github.com/channel-access-ledger/internal/api_gateway/handler"
	"github.com/channel-access-ledger/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	ledgerHandler *handler.LedgerHandler,
	operationHandler *handler.OperationHandler,
	healthHandler *handler.HealthHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ledger", ledgerHandler.GetSummary)

		// Operations that change ledger state are queued and need a caller
		v1.POST("/channels", middleware.RequirePrincipal(), operationHandler.RegisterChannel)
		v1.POST("/channels/:id/memberships", middleware.RequirePrincipal(), operationHandler.JoinChannel)
		v1.POST("/withdrawals", middleware.RequirePrincipal(), operationHandler.Withdraw)

		channels := v1.Group("/channels")
		{
			channels.GET("", ledgerHandler.ListChannels)
			channels.GET("/:id", ledgerHandler.GetChannel)
			channels.GET("/:id/members/:principal", ledgerHandler.HasJoined)
		}

		v1.GET("/memberships/:id", ledgerHandler.GetMembership)

		v1.GET("/operations/:id", operationHandler.GetByID)
		v1.GET("/principals/:principal/operations", operationHandler.GetByPrincipal)
	}

	r.GET("/health", healthHandler.Check)
}
