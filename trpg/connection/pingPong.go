package connection

import (
	"time"

	"trpgserver/models"
	"trpgserver/trpg/broadcast"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 10 * time.Second
)

// SetupPongHandler は読み取りデッドラインとPongハンドラを設定します。
// 読み取りループを始める前に呼びます。
func SetupPongHandler(c *models.Client, hub *broadcast.Hub) {
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		hub.NotifyOnlineStatus(c.RoomID, c.UserID, true)
		return nil
	})
}

// MaintainWebSocketConnection は定期的にPingを送ります。
// doneが閉じられるか、Pingの送信に失敗すると戻ります。
func MaintainWebSocketConnection(c *models.Client, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControlは他の書き込みと並行して呼べる
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				logger.Error("Error sending ping", zap.String("userID", c.UserID), zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
