package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpgserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionTTL はwebsocketセッションIDの有効期限です。
const SessionTTL = 24 * time.Hour

// ErrSessionNotFound は期限切れまたは存在しないセッションIDです。
var ErrSessionNotFound = errors.New("session not found")

type sessionInfo struct {
	UserID string `json:"userID"`
	RoomID string `json:"roomID"`
	Role   string `json:"role"`
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// ValidateSessionID checks the session ID in Redis and returns the stored client identity.
func ValidateSessionID(ctx context.Context, rdb redis.UniversalClient, sessionID string, logger *zap.Logger) (*models.Client, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	data, err := rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		logger.Error("Failed to retrieve session info", zap.Error(err))
		return nil, fmt.Errorf("get session: %w", err)
	}

	var info sessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		logger.Error("Failed to decode session info", zap.Error(err))
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if info.UserID == "" || info.RoomID == "" {
		return nil, errors.New("invalid session info")
	}

	return &models.Client{
		UserID:    info.UserID,
		RoomID:    info.RoomID,
		Role:      info.Role,
		SessionID: sessionID,
	}, nil
}

// StoreSessionID は新しいセッションIDを発行してRedisに保存します。
func StoreSessionID(ctx context.Context, client *models.Client, rdb redis.UniversalClient, logger *zap.Logger) (string, error) {
	sessionID := uuid.New().String()

	data, err := json.Marshal(sessionInfo{UserID: client.UserID, RoomID: client.RoomID, Role: client.Role})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := rdb.Set(ctx, sessionKey(sessionID), data, SessionTTL).Err(); err != nil {
		logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", fmt.Errorf("store session: %w", err)
	}
	client.SessionID = sessionID
	return sessionID, nil
}

// DeleteSessionID removes a session ID.
func DeleteSessionID(ctx context.Context, rdb redis.UniversalClient, sessionID string) error {
	if err := rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GenerateAndStoreSessionID はセッションIDを発行し、クライアントに送り返します。
func GenerateAndStoreSessionID(ctx context.Context, client *models.Client, rdb redis.UniversalClient, logger *zap.Logger) error {
	sessionID, err := StoreSessionID(ctx, client, rdb, logger)
	if err != nil {
		return err
	}

	response := map[string]interface{}{
		"type":      "session",
		"sessionID": sessionID,
		"userID":    client.UserID,
	}
	if client.Conn == nil {
		logger.Warn("WebSocket connection is not established, cannot send session ID")
		return nil
	}
	if err := client.WriteJSON(response); err != nil {
		logger.Error("Error sending session ID to client", zap.Error(err))
		return fmt.Errorf("send session id: %w", err)
	}
	logger.Info("Successfully sent session ID to client", zap.String("sessionID", sessionID))
	return nil
}
