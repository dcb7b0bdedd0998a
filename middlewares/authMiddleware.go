package middlewares

import (
	"net/http"
	"strings"

	"trpgserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextUserID はgin.Contextに認証済みユーザーIDを保存するキーです。
const ContextUserID = "UserID"

// tokenFromRequest はAuthorizationヘッダー、無ければtokenクエリからトークンを取り出します。
// ブラウザのWebSocketはヘッダーを付けられないためクエリも受け付けます。
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// トークン検証を行うミドルウェア
func AuthMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			logger.Warn("認証失敗: トークンがありません", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			logger.Warn("認証失敗", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		// 後続のハンドラはAuthorizationヘッダーだけを見ればよい
		c.Request.Header.Set("Authorization", "Bearer "+token)
		c.Set(ContextUserID, claims.UserID) // ユーザーIDをコンテキストにセット
		c.Next()
	}
}
