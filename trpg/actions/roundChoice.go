package actions

import (
	"context"

	"trpgserver/internal/scene"
	"trpgserver/internal/turn"
	"trpgserver/models"
	"trpgserver/trpg/broadcast"

	"go.uber.org/zap"
)

// handleSubmitChoice はラウンド制シーンの選択を受け付け、全員揃ったら一括で判定します。
func (h *Handler) handleSubmitChoice(ctx context.Context, client *models.Client, msg Message) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	if !hasChoice(tmpl.Choices[client.Role], msg.ChoiceID) {
		if _, ok := tmpl.Choices[client.Role]; !ok {
			h.fail(client, &turn.UnknownRoleError{SceneIndex: idx, Role: client.Role})
		} else {
			h.fail(client, &turn.UnknownChoiceError{SceneIndex: idx, Role: client.Role, ChoiceID: msg.ChoiceID})
		}
		return
	}

	if err := h.store.SubmitChoice(ctx, client.RoomID, idx, client.Role, msg.ChoiceID); err != nil {
		h.fail(client, err)
		return
	}
	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "choice_submitted",
		"sceneIndex": idx,
		"role":       client.Role,
	})

	expected := len(h.hub.Roles(client.RoomID))
	done, err := h.store.AllSubmitted(ctx, client.RoomID, idx, expected)
	if err != nil {
		h.fail(client, err)
		return
	}
	if !done {
		return
	}

	choices, err := h.store.GetChoices(ctx, client.RoomID, idx)
	if err != nil {
		h.fail(client, err)
		return
	}
	out, err := h.resolver.ResolveRound(tmpl, idx, choices)
	if err != nil {
		h.fail(client, err)
		return
	}
	if err := h.store.ClearChoices(ctx, client.RoomID, idx); err != nil {
		h.logger.Error("Failed to clear choices", zap.String("roomID", client.RoomID), zap.Error(err))
	}

	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "round_resolved",
		"sceneIndex": idx,
		"results":    out.Results,
		"logs":       out.Logs,
	})
}

func hasChoice(choices []scene.Choice, id string) bool {
	for _, c := range choices {
		if c.ID == id {
			return true
		}
	}
	return false
}
