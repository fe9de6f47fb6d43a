package middleware

import (
	"net/http"
	"strings"

	"github.com/channel-access-ledger/internal/config"
	"github.com/gin-gonic/gin"
)

const (
	// PrincipalHeader carries the caller identity, authenticated upstream
	PrincipalHeader = "X-Principal-ID"

	PrincipalKey = "principal"
)

// RequirePrincipal rejects requests without a caller principal
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(PrincipalHeader))
		if principal == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing "+PrincipalHeader+" header")
			return
		}
		if len(principal) > config.MaxPrincipalLength {
			abortWithError(c, http.StatusBadRequest, "BAD_REQUEST", "Principal is too long")
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// GetPrincipal returns the principal stored by RequirePrincipal, or ""
func GetPrincipal(c *gin.Context) string {
	return c.GetString(PrincipalKey)
}
