package connection

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"trpgserver/auth"
	"trpgserver/models"

	"go.uber.org/zap"
)

// ClientContext はクライアントのセッション情報を保持するための構造体です。
type ClientContext struct {
	UserID string
	RoomID string
	Role   string
	Claims *models.MyClaims // JWTクレームを含む
}

// TokenValidation は Authorization ヘッダーのBearerトークンを検証します。
func TokenValidation(r *http.Request, logger *zap.Logger) (*models.MyClaims, error) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	claims, err := auth.ParseToken(tokenString)
	if err != nil {
		logger.Error("Failed to validate token", zap.Error(err))
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return claims, nil
}

// FetchClientContext はトークンとクエリ(roomId, role)から接続情報を組み立てます。
// roleは観戦者なら空でも構いません。
func FetchClientContext(r *http.Request, logger *zap.Logger) (*ClientContext, error) {
	claims, err := TokenValidation(r, logger)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}

	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		return nil, errors.New("roomId is required")
	}

	return &ClientContext{
		UserID: claims.UserID,
		RoomID: roomID,
		Role:   r.URL.Query().Get("role"),
		Claims: claims,
	}, nil
}
