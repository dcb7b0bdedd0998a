package trpg

import (
	"context"
	"errors"
	"net/http"

	"trpgserver/models"
	"trpgserver/trpg/actions"
	"trpgserver/trpg/broadcast"
	"trpgserver/trpg/connection"
	"trpgserver/trpg/database"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandleConnections はWebSocket接続へのアップグレードを行い、切断までメッセージを処理します。
func HandleConnections(w http.ResponseWriter, r *http.Request, rdb redis.UniversalClient, hub *broadcast.Hub, handler *actions.Handler, upgrader websocket.Upgrader, logger *zap.Logger) {
	// ハイジャック後のリクエストのcontextは当てにできないので切り離す
	ctx := context.WithoutCancel(r.Context())

	// ユーザーコンテキストの取得
	clientContext, err := connection.FetchClientContext(r, logger)
	if err != nil {
		logger.Error("Error fetching client context", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := clientContext.Role

	// セッションIDの検証と復元
	sessionID := r.Header.Get("SessionID")
	if sessionID != "" {
		restored, err := database.ValidateSessionID(ctx, rdb, sessionID, logger)
		if errors.Is(err, database.ErrSessionNotFound) {
			http.Error(w, "Invalid or expired session ID", http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, "Failed to restore session", http.StatusInternalServerError)
			return
		}
		if restored.UserID != clientContext.UserID || restored.RoomID != clientContext.RoomID {
			http.Error(w, "Session does not belong to this user", http.StatusForbidden)
			return
		}
		if role == "" {
			role = restored.Role
		}
		// 旧セッションの削除
		if err := database.DeleteSessionID(ctx, rdb, sessionID); err != nil {
			logger.Warn("Failed to delete old session", zap.Error(err))
		}
	}

	if err := handler.EnsureRoom(ctx, clientContext.RoomID); err != nil {
		logger.Error("Failed to initialize room", zap.String("roomID", clientContext.RoomID), zap.Error(err))
		http.Error(w, "Failed to initialize room", http.StatusInternalServerError)
		return
	}

	// WebSocket接続へのアップグレードと確立
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが既にエラーレスポンスを書いている
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := &models.Client{
		Conn:   conn,
		UserID: clientContext.UserID,
		RoomID: clientContext.RoomID,
		Role:   role,
	}
	hub.Add(client)
	logger.Info("New client added", zap.String("userID", client.UserID), zap.String("roomID", client.RoomID), zap.String("role", client.Role))

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		hub.Remove(client)
		logger.Info("Client removed", zap.String("userID", client.UserID))
		// 切断されたことを他のクライアントに通知
		hub.NotifyOnlineStatus(client.RoomID, client.UserID, false)
	}()

	// 新しいセッションIDの発行と送信
	if err := database.GenerateAndStoreSessionID(ctx, client, rdb, logger); err != nil {
		logger.Error("Failed to generate or store session ID", zap.Error(err))
	}
	hub.NotifyOnlineStatus(client.RoomID, client.UserID, true)

	// Ping/Pongを管理するゴルーチンを起動
	connection.SetupPongHandler(client, hub)
	go connection.MaintainWebSocketConnection(client, done, logger)

	handler.HandleClient(ctx, client)
}
