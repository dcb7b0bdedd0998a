package broadcast

import (
	"trpgserver/models"

	"go.uber.org/zap"
)

// Message はクライアントへ送るメッセージの共通形式です。
type Message map[string]interface{}

// BroadcastToRoom はルーム内の全クライアントにメッセージを送ります。
func (h *Hub) BroadcastToRoom(roomID string, msg interface{}) {
	for _, c := range h.Clients(roomID) {
		if err := c.WriteJSON(msg); err != nil {
			h.logger.Error("Failed to broadcast message",
				zap.String("roomID", roomID),
				zap.String("userID", c.UserID),
				zap.Error(err),
			)
		}
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(c *models.Client, msg interface{}) {
	if err := c.WriteJSON(msg); err != nil {
		h.logger.Error("Failed to send message", zap.String("userID", c.UserID), zap.Error(err))
	}
}

// SendError は操作したクライアントだけにエラーを返します。ルームには流しません。
func (h *Hub) SendError(c *models.Client, errorMessage string) {
	h.SendToClient(c, Message{"type": "error", "error": errorMessage})
}

// NotifyOnlineStatus は他のクライアントにオンライン状態を通知します。
func (h *Hub) NotifyOnlineStatus(roomID, userID string, isOnline bool) {
	for _, c := range h.Clients(roomID) {
		if c.UserID == userID {
			continue
		}
		msg := Message{
			"type":     "onlineStatus",
			"userID":   userID,
			"isOnline": isOnline,
		}
		if err := c.WriteJSON(msg); err != nil {
			h.logger.Error("Failed to send online status message", zap.String("to", c.UserID), zap.Error(err))
		}
	}
}
