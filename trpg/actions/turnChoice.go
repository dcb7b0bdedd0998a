package actions

import (
	"context"
	"errors"

	"trpgserver/internal/state"
	"trpgserver/internal/turn"
	"trpgserver/models"
	"trpgserver/trpg/broadcast"

	"go.uber.org/zap"
)

// aiResultKey はAIの判定結果をユーザーIDと衝突しないキーで記録するためのものです。
func aiResultKey(role string) string {
	return "ai:" + role
}

func (h *Handler) handleRequestState(ctx context.Context, client *models.Client) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	ready, err := h.store.GetReady(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}

	msg := broadcast.Message{
		"type":       "state",
		"sceneIndex": idx,
		"scene":      tmpl,
		"readyUsers": ready,
		"totalUsers": len(h.hub.UserIDs(client.RoomID)),
	}
	if tmpl.TurnBased() {
		order, err := h.store.TurnOrder(ctx, client.RoomID, idx)
		if err != nil {
			h.fail(client, err)
			return
		}
		msg["turnOrder"] = order

		role, err := h.store.CurrentTurnRole(ctx, client.RoomID, idx)
		switch {
		case err == nil:
			msg["currentRole"] = role
			msg["sceneOver"] = false
		case errors.Is(err, state.ErrTurnsExhausted):
			msg["sceneOver"] = true
		default:
			h.fail(client, err)
			return
		}
	}
	h.hub.SendToClient(client, msg)
}

// handleSubmitTurnChoice は手番のプレイヤーの選択を判定し、手番を進めます。
func (h *Handler) handleSubmitTurnChoice(ctx context.Context, client *models.Client, msg Message) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	turnIndex, role, ok := h.currentTurn(ctx, client, idx)
	if !ok {
		return
	}
	if role != client.Role {
		h.hub.SendError(client, "Not your turn")
		return
	}

	out, err := h.resolver.ResolveTurn(tmpl, idx, role, msg.ChoiceID)
	if err != nil {
		h.fail(client, err)
		return
	}
	h.advanceTurn(ctx, client, turnIndex, client.UserID, out)
}

// handleRunAITurn はプレイヤーのいないロールの手番をAIに任せます。
func (h *Handler) handleRunAITurn(ctx context.Context, client *models.Client) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	turnIndex, role, ok := h.currentTurn(ctx, client, idx)
	if !ok {
		return
	}
	if h.hub.HasRole(client.RoomID, role) {
		h.hub.SendError(client, "Role is controlled by a player")
		return
	}

	out, err := h.resolver.SimulateAI(tmpl, idx, role)
	if err != nil {
		h.fail(client, err)
		return
	}
	h.advanceTurn(ctx, client, turnIndex, aiResultKey(role), out)
}

// currentTurn は手番のインデックスとロールを返します。失敗はクライアントに通知済みでok=falseです。
// 状態が壊れていればターン順を作り直します。
func (h *Handler) currentTurn(ctx context.Context, client *models.Client, idx int) (int, string, bool) {
	turnIndex, role, err := h.store.CurrentTurn(ctx, client.RoomID, idx)
	if err == nil {
		return turnIndex, role, true
	}
	if errors.Is(err, state.ErrTurnsExhausted) {
		h.hub.SendError(client, "All turns in this scene are finished")
		return 0, "", false
	}

	var corrupt *state.StateCorruptionError
	if errors.As(err, &corrupt) {
		h.logger.Warn("Turn state corrupted, reinitializing", zap.String("roomID", client.RoomID), zap.Int("sceneIndex", idx), zap.String("reason", corrupt.Reason))
		if tmpl, terr := h.catalog.Template(idx); terr == nil {
			if ierr := h.store.InitializeTurnOrder(ctx, client.RoomID, idx, tmpl); ierr != nil {
				h.logger.Error("Failed to reinitialize turn order", zap.Error(ierr))
			}
		}
	}
	h.fail(client, err)
	return 0, "", false
}

// advanceTurn は読んだ手番のままなら手番を進め、結果を記録して配信します。
// 先に他の操作が進めていれば何も記録しません。
func (h *Handler) advanceTurn(ctx context.Context, client *models.Client, turnIndex int, resultKey string, out turn.Outcome) {
	next, err := h.store.AdvanceTurnFrom(ctx, client.RoomID, out.SceneIndex, turnIndex)
	if errors.Is(err, state.ErrTurnTaken) {
		h.logger.Info("Turn already taken", zap.String("roomID", client.RoomID), zap.Int("turnIndex", turnIndex), zap.String("role", out.Result.Role))
		h.hub.SendError(client, "Turn was already taken")
		return
	}
	sceneOver := errors.Is(err, state.ErrTurnsExhausted)
	if err != nil && !sceneOver {
		h.fail(client, err)
		return
	}
	if err := h.store.RecordTurnResult(ctx, client.RoomID, resultKey, out.Result); err != nil {
		h.fail(client, err)
		return
	}

	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "turn_resolved",
		"sceneIndex": out.SceneIndex,
		"result":     out.Result,
		"log":        out.Log,
		"nextRole":   next,
		"sceneOver":  sceneOver,
	})
}
