package actions

import (
	"context"
	"errors"
	"sort"

	"trpgserver/internal/gm"
	"trpgserver/internal/scene"
	"trpgserver/internal/turn"
	"trpgserver/models"
	"trpgserver/trpg/broadcast"
	"trpgserver/trpg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// idleAction はAIが選択できなかったときの行動文です。
const idleAction = "watches the situation"

func (h *Handler) handleStartGMSession(ctx context.Context, client *models.Client, msg Message) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	st := gm.NewState(uuid.New().String(), tmpl, msg.Characters, msg.History)
	if msg.Scenario != nil {
		if msg.Scenario.Title != "" {
			st.Scenario.Title = msg.Scenario.Title
		}
		st.Scenario.Summary = msg.Scenario.Summary
	}
	if err := h.store.SaveGameState(ctx, client.RoomID, st); err != nil {
		h.fail(client, err)
		return
	}
	if err := h.store.ClearTurnResults(ctx, client.RoomID); err != nil {
		h.logger.Error("Failed to clear turn results", zap.String("roomID", client.RoomID), zap.Error(err))
	}
	if err := h.store.ClearTurnRolls(ctx, client.RoomID); err != nil {
		h.logger.Error("Failed to clear turn rolls", zap.String("roomID", client.RoomID), zap.Error(err))
	}

	h.logger.Info("GM session started", zap.String("roomID", client.RoomID), zap.String("sessionID", st.SessionID), zap.Int("party", len(st.Party)))
	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "gm_state",
		"sceneIndex": idx,
		"state":      st,
	})
}

// loadGameState はキャッシュ済みのGM状態を読みます。無ければクライアントに通知してok=falseです。
func (h *Handler) loadGameState(ctx context.Context, client *models.Client) (gm.State, bool) {
	st, ok, err := h.store.LoadGameState(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return gm.State{}, false
	}
	if !ok {
		h.hub.SendError(client, "GM session has not been started")
		return gm.State{}, false
	}
	return st, true
}

// handleSubmitPlayerChoice はGMモードでの選択を判定し、全員分揃ったらナレーターに渡します。
func (h *Handler) handleSubmitPlayerChoice(ctx context.Context, client *models.Client, msg Message) {
	idx, tmpl, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	st, ok := h.loadGameState(ctx, client)
	if !ok {
		return
	}
	member, ok := st.Member(msg.CharacterID)
	if !ok {
		h.fail(client, &gm.InvalidPlayerError{IDs: []string{msg.CharacterID}})
		return
	}

	resolver := h.resolver.WithStats(st)
	var out turn.Outcome
	if _, isRound := tmpl.Choices[member.Role]; isRound {
		out, err = resolver.ResolveChoice(tmpl, idx, member.Role, msg.ChoiceID)
	} else {
		out, err = resolver.ResolveTurn(tmpl, idx, member.Role, msg.ChoiceID)
	}
	if err != nil {
		h.fail(client, err)
		return
	}
	out.Result.CharacterID = member.ID
	out.Result.CharacterName = member.Name
	if err := h.store.RecordTurnResult(ctx, client.RoomID, client.UserID, out.Result); err != nil {
		h.fail(client, err)
		return
	}

	results, err := h.store.GetAllTurnResults(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	users := h.hub.UserIDs(client.RoomID)
	submitted := make([]string, 0, len(users))
	for _, uid := range users {
		if _, ok := results[uid]; ok {
			submitted = append(submitted, uid)
		}
	}
	if len(submitted) < len(users) {
		h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
			"type":           "turn_waiting",
			"submittedUsers": submitted,
			"totalUsers":     len(users),
		})
		return
	}

	h.resolveGMTurn(ctx, client, st, tmpl, idx, results)
}

// resolveGMTurn はAIメンバーの行動を補い、ナレーターの応答を状態にマージします。
// 1つのターンを解決するのは最初に権利を取った呼び出しだけです。
// ナレーターが失敗した場合は結果を残して権利を手放すので、再送で判定をやり直せます。
func (h *Handler) resolveGMTurn(ctx context.Context, client *models.Client, st gm.State, tmpl scene.Template, idx int, recorded map[string]models.TurnResult) {
	won, err := h.store.ClaimResolution(ctx, client.RoomID, st.SessionID, st.Turn)
	if err != nil {
		h.fail(client, err)
		return
	}
	if !won {
		h.logger.Info("GM turn is already being resolved", zap.String("roomID", client.RoomID), zap.Int("turn", st.Turn))
		return
	}
	resolved := false
	defer func() {
		if resolved {
			return
		}
		if err := h.store.ReleaseResolution(ctx, client.RoomID, st.SessionID, st.Turn); err != nil {
			h.logger.Error("Failed to release GM turn", zap.String("roomID", client.RoomID), zap.Error(err))
		}
	}()

	keys := make([]string, 0, len(recorded))
	for k := range recorded {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	actions := make(map[string]string, len(st.Party))
	results := make([]models.TurnResult, 0, len(st.Party))
	for _, k := range keys {
		res := recorded[k]
		if res.CharacterID == "" {
			continue
		}
		actions[res.CharacterID] = choiceText(tmpl, res.Role, res.ChoiceID)
		results = append(results, res)
	}

	resolver := h.resolver.WithStats(st)
	for _, m := range st.Party {
		if _, ok := actions[m.ID]; ok {
			continue
		}
		out, err := resolver.SimulateAI(tmpl, idx, m.Role)
		if err != nil {
			actions[m.ID] = idleAction
			continue
		}
		out.Result.CharacterID = m.ID
		out.Result.CharacterName = m.Name
		actions[m.ID] = choiceText(tmpl, m.Role, out.Result.ChoiceID)
		results = append(results, out.Result)
	}
	if err := gm.ValidateChoices(st, actions); err != nil {
		h.fail(client, err)
		return
	}

	rolls, err := h.store.GetAllTurnRolls(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	choices := gm.Choices{Actions: actions, Rolls: gm.RollsHint(rolls)}

	if h.narrator == nil {
		h.hub.SendError(client, "Narrator is not configured")
		return
	}
	text, err := h.narrator.Resolve(ctx, st, choices)
	if err != nil {
		h.logger.Error("Narrator failed", zap.String("roomID", client.RoomID), zap.Error(err))
		h.hub.SendError(client, "Narrator error: "+err.Error())
		return
	}

	res := gm.NormalizeText(st, text)
	next := gm.Merge(st, res)
	if err := h.store.SaveGameState(ctx, client.RoomID, next); err != nil {
		h.fail(client, err)
		return
	}
	resolved = true

	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "turn_resolved",
		"sceneIndex": idx,
		"results":    results,
		"narration":  res.Narration,
		"personal":   res.Personal,
		"world":      next.World,
		"party":      res.Party,
		"shari":      res.Shari,
		"state":      next,
	})

	if err := h.store.ClearTurnResults(ctx, client.RoomID); err != nil {
		h.logger.Error("Failed to clear turn results", zap.String("roomID", client.RoomID), zap.Error(err))
	}
	if err := h.store.ClearTurnRolls(ctx, client.RoomID); err != nil {
		h.logger.Error("Failed to clear turn rolls", zap.String("roomID", client.RoomID), zap.Error(err))
	}
}

// choiceText はテンプレートから選択肢の文を探します。
func choiceText(tmpl scene.Template, role, choiceID string) string {
	lists := [][]scene.Choice{tmpl.Choices[role]}
	for _, t := range tmpl.Turns {
		if t.Role == role {
			lists = append(lists, t.Choices)
		}
	}
	for _, list := range lists {
		for _, c := range list {
			if c.ID == choiceID {
				return c.Text
			}
		}
	}
	return choiceID
}

func (h *Handler) handleTurnRoll(ctx context.Context, client *models.Client, msg Message) {
	playerID := msg.CharacterID
	if playerID == "" {
		playerID = client.UserID
	}
	if err := h.store.RecordTurnRoll(ctx, client.RoomID, playerID, msg.Roll); err != nil {
		h.fail(client, err)
		return
	}
	rolls, err := h.store.GetAllTurnRolls(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":  "turn_roll_update",
		"rolls": rolls,
	})
}

// handleSaveGameState はキャッシュ中のGM状態をPostgreSQLに保存します。
func (h *Handler) handleSaveGameState(ctx context.Context, client *models.Client) {
	if h.sessions == nil {
		h.hub.SendError(client, "Saving is not available")
		return
	}
	idx, _, err := h.activeScene(ctx, client.RoomID)
	if err != nil {
		h.fail(client, err)
		return
	}
	st, ok := h.loadGameState(ctx, client)
	if !ok {
		return
	}
	if err := h.sessions.Save(ctx, client.RoomID, client.UserID, idx, st); err != nil {
		h.fail(client, err)
		return
	}
	h.hub.SendToClient(client, broadcast.Message{
		"type":       "game_saved",
		"sceneIndex": idx,
		"turn":       st.Turn,
	})
}

// handleContinueGame は保存済みのGM状態をキャッシュに戻し、ルームに配信します。
func (h *Handler) handleContinueGame(ctx context.Context, client *models.Client) {
	if h.sessions == nil {
		h.hub.SendError(client, "Saving is not available")
		return
	}
	st, idx, err := h.sessions.Load(ctx, client.RoomID)
	if errors.Is(err, database.ErrNoSavedSession) {
		h.hub.SendError(client, "No saved game for this room")
		return
	}
	if err != nil {
		h.fail(client, err)
		return
	}
	tmpl, err := h.catalog.Template(idx)
	if err != nil {
		h.fail(client, err)
		return
	}

	if err := h.store.SaveGameState(ctx, client.RoomID, st); err != nil {
		h.fail(client, err)
		return
	}
	// 保存時点のシーンに戻る前に、ロックと進行中の状態を捨てる
	reset := []struct {
		name string
		fn   func() error
	}{
		{"advance lock", func() error { return h.store.ReleaseAdvanceLock(ctx, client.RoomID, idx) }},
		{"resolution", func() error { return h.store.ReleaseResolution(ctx, client.RoomID, st.SessionID, st.Turn) }},
		{"choices", func() error { return h.store.ClearChoices(ctx, client.RoomID, idx) }},
		{"ready users", func() error { return h.store.ClearReady(ctx, client.RoomID) }},
		{"turn results", func() error { return h.store.ClearTurnResults(ctx, client.RoomID) }},
		{"turn rolls", func() error { return h.store.ClearTurnRolls(ctx, client.RoomID) }},
	}
	for _, r := range reset {
		if err := r.fn(); err != nil {
			h.fail(client, err)
			return
		}
	}
	if err := h.store.SetScene(ctx, client.RoomID, idx); err != nil {
		h.fail(client, err)
		return
	}
	if err := h.store.InitializeTurnOrder(ctx, client.RoomID, idx, tmpl); err != nil {
		h.fail(client, err)
		return
	}

	h.hub.BroadcastToRoom(client.RoomID, broadcast.Message{
		"type":       "gm_state",
		"sceneIndex": idx,
		"state":      st,
	})
}
