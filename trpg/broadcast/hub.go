package broadcast

import (
	"sort"
	"sync"

	"trpgserver/models"

	"go.uber.org/zap"
)

// Hub はルームごとの接続中クライアントを管理します。
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*models.Client]bool
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*models.Client]bool),
		logger: logger,
	}
}

// Add registers a client in its room.
func (h *Hub) Add(c *models.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.RoomID]
	if !ok {
		room = make(map[*models.Client]bool)
		h.rooms[c.RoomID] = room
	}
	room[c] = true
}

// Remove unregisters a client. It reports whether the client was registered.
func (h *Hub) Remove(c *models.Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.RoomID]
	if !ok || !room[c] {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.RoomID)
	}
	return true
}

// Clients returns a snapshot of the room's clients.
func (h *Hub) Clients(roomID string) []*models.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*models.Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		out = append(out, c)
	}
	return out
}

// UserIDs はルーム内の接続中ユーザーID(重複なし)をソートして返します。
func (h *Hub) UserIDs(roomID string) []string {
	seen := make(map[string]bool)
	for _, c := range h.Clients(roomID) {
		seen[c.UserID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Roles はルーム内の接続中クライアントが持つロール(重複なし)をソートして返します。
func (h *Hub) Roles(roomID string) []string {
	seen := make(map[string]bool)
	for _, c := range h.Clients(roomID) {
		if c.Role != "" {
			seen[c.Role] = true
		}
	}
	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// HasRole reports whether a connected client holds role in the room.
func (h *Hub) HasRole(roomID, role string) bool {
	for _, c := range h.Clients(roomID) {
		if c.Role == role {
			return true
		}
	}
	return false
}
