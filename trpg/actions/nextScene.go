package actions

import (
	"context"
	"errors"

	"trpgserver/internal/scene"
	"trpgserver/models"
	"trpgserver/trpg/broadcast"

	"go.uber.org/zap"
)

// handleReadyForNextScene は準備完了を記録し、全員揃ったらシーンを1つだけ進めます。
func (h *Handler) handleReadyForNextScene(ctx context.Context, client *models.Client) {
	idx, _, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	if err := h.store.MarkReady(ctx, client.RoomID, client.UserID); err != nil {
		h.fail(client, err)
		return
	}
	ready, err := h.store.GetReady(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	users := h.hub.UserIDs(client.RoomID)
	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "next_scene_ready_state_update",
		"readyUsers": ready,
		"totalUsers": len(users),
	})

	allReady, err := h.store.AllReady(ctx, client.RoomID, users)
	if err != nil {
		h.fail(client, err)
		return
	}
	if !allReady {
		return
	}

	next, advanced, err := h.store.AdvanceSceneOnce(ctx, client.RoomID, idx)
	if err != nil {
		h.fail(client, err)
		return
	}
	if !advanced {
		return
	}
	h.startScene(ctx, client, idx, next)
}

// startScene は前のシーンの状態を片付け、次のシーンを始めます。
func (h *Handler) startScene(ctx context.Context, client *models.Client, prev, next int) {
	roomID := client.RoomID
	cleanup := []struct {
		name string
		fn   func() error
	}{
		{"turn order", func() error { return h.store.ClearTurnOrder(ctx, roomID, prev) }},
		{"choices", func() error { return h.store.ClearChoices(ctx, roomID, prev) }},
		{"ready users", func() error { return h.store.ClearReady(ctx, roomID) }},
		{"turn results", func() error { return h.store.ClearTurnResults(ctx, roomID) }},
	}
	for _, c := range cleanup {
		if err := c.fn(); err != nil {
			h.logger.Error("Failed to clear scene state", zap.String("roomID", roomID), zap.String("what", c.name), zap.Error(err))
		}
	}

	tmpl, err := h.catalog.Template(next)
	if errors.Is(err, scene.ErrUnknownScene) {
		h.logger.Info("Scenario finished", zap.String("roomID", roomID), zap.Int("sceneIndex", next))
		h.hub.BroadcastToRoom(roomID, broadcast.Message{
			"type":       "scenario_end",
			"sceneIndex": next,
		})
		return
	}
	if err != nil {
		h.fail(client, err)
		return
	}
	if err := h.store.InitializeTurnOrder(ctx, roomID, next, tmpl); err != nil {
		h.fail(client, err)
		return
	}

	// GMモードなら世界の場所も新しいシーンに合わせます
	if st, ok, err := h.store.LoadGameState(ctx, roomID); err == nil && ok {
		st.World.PrevLocation = st.World.Location
		st.World.Location = tmpl.Title
		st.World.Notes = tmpl.Description
		if err := h.store.SaveGameState(ctx, roomID, st); err != nil {
			h.logger.Error("Failed to update GM world", zap.String("roomID", roomID), zap.Error(err))
		}
	}

	msg := broadcast.Message{
		"type":       "scene_update",
		"sceneIndex": next,
		"scene":      tmpl,
		"world": broadcast.Message{
			"location": tmpl.Title,
			"notes":    tmpl.Description,
		},
	}
	if order := tmpl.RoleSequence(); len(order) > 0 {
		msg["turnOrder"] = order
		msg["currentRole"] = order[0]
	}
	h.hub.BroadcastToRoom(roomID, msg)
}
