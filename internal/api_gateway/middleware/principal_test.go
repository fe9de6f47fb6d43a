package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/channel-access-ledger/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirePrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(captured *string) *gin.Engine {
		router := gin.New()
		router.Use(CorrelationID())
		router.Use(RequirePrincipal())
		router.POST("/withdrawals", func(c *gin.Context) {
			*captured = GetPrincipal(c)
			c.Status(http.StatusAccepted)
		})
		return router
	}

	t.Run("StoresPrincipal", func(t *testing.T) {
		var captured string
		req, _ := http.NewRequest(http.MethodPost, "/withdrawals", nil)
		req.Header.Set(PrincipalHeader, " 0xdeployer ")
		rr := httptest.NewRecorder()
		newRouter(&captured).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, "0xdeployer", captured)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		var captured string
		req, _ := http.NewRequest(http.MethodPost, "/withdrawals", nil)
		req.Header.Set(CorrelationIDHeader, "corr-1")
		rr := httptest.NewRecorder()
		newRouter(&captured).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, captured)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		errorField, ok := body["error"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "UNAUTHORIZED", errorField["code"])
		assert.Equal(t, "corr-1", body["correlation_id"])
	})

	t.Run("OversizedPrincipal", func(t *testing.T) {
		var captured string
		req, _ := http.NewRequest(http.MethodPost, "/withdrawals", nil)
		req.Header.Set(PrincipalHeader, strings.Repeat("a", config.MaxPrincipalLength+1))
		rr := httptest.NewRecorder()
		newRouter(&captured).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetPrincipal_Empty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetPrincipal(c))
}
