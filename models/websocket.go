package models

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Websocketクライアントを定義
type Client struct {
	Conn      *websocket.Conn
	UserID    string // JWTから抽出したユーザーID
	RoomID    string
	Role      string // シーン内のロール (例: "brother", "tiger")
	SessionID string

	mu sync.Mutex // gorillaのConnは同時に1つの書き込みしか許さない
}

// WriteJSON serializes v to the connection under the client's write lock.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}
