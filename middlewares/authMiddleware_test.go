package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trpgserver/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", AuthMiddleware(zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userID": c.GetString(ContextUserID),
			"header": c.GetHeader("Authorization"),
		})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	auth.SetKey("mw-secret")
	token, err := auth.GenerateToken("u9", time.Hour)
	require.NoError(t, err)
	router := newRouter()

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/ws", "Bearer " + token, http.StatusOK},
		{"query token", "/ws?token=" + token, "", http.StatusOK},
		{"missing", "/ws", "", http.StatusUnauthorized},
		{"garbage", "/ws", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"userID":"u9","header":"Bearer `+token+`"}`, w.Body.String())
			}
		})
	}
}
