package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trpgserver/internal/gm"
	"trpgserver/internal/scene"
	"trpgserver/internal/state"
	"trpgserver/internal/turn"
	"trpgserver/models"
	"trpgserver/trpg/broadcast"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Narrator はナレーション生成サービスです。応答は未検証のテキストです。
type Narrator interface {
	Resolve(ctx context.Context, st gm.State, choices gm.Choices) (string, error)
}

// SessionRepository persists GM-mode snapshots for continue_game.
type SessionRepository interface {
	Save(ctx context.Context, roomID, savedBy string, sceneIndex int, st gm.State) error
	Load(ctx context.Context, roomID string) (gm.State, int, error)
}

// Message はクライアントから受け取るメッセージです。
type Message struct {
	Type        string            `json:"type"`
	ChoiceID    string            `json:"choiceId"`
	CharacterID string            `json:"characterId"`
	Roll        int               `json:"roll"`
	Characters  []gm.Character    `json:"characters"`
	Scenario    *gm.Scenario      `json:"scenario"`
	History     []gm.HistoryEntry `json:"history"`
}

// Handler はメッセージごとの処理を行います。
type Handler struct {
	store    *state.Store
	catalog  scene.Catalog
	resolver *turn.Resolver
	hub      *broadcast.Hub
	narrator Narrator
	sessions SessionRepository
	logger   *zap.Logger
}

// NewHandler wires the handler. narrator and sessions may be nil; the
// messages that need them then fail for the acting client only.
func NewHandler(store *state.Store, catalog scene.Catalog, resolver *turn.Resolver, hub *broadcast.Hub, narrator Narrator, sessions SessionRepository, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		catalog:  catalog,
		resolver: resolver,
		hub:      hub,
		narrator: narrator,
		sessions: sessions,
		logger:   logger,
	}
}

// EnsureRoom はシーンが未設定のルームをシーン0で初期化します。
func (h *Handler) EnsureRoom(ctx context.Context, roomID string) error {
	_, ok, err := h.store.CurrentScene(ctx, roomID)
	if err != nil || ok {
		return err
	}
	tmpl, err := h.catalog.Template(0)
	if err != nil {
		return err
	}
	if err := h.store.SetScene(ctx, roomID, 0); err != nil {
		return err
	}
	return h.store.InitializeTurnOrder(ctx, roomID, 0, tmpl)
}

// HandleClient はクライアントごとにメッセージを読み取るループです。切断で戻ります。
func (h *Handler) HandleClient(ctx context.Context, client *models.Client) {
	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket error", zap.String("userID", client.UserID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Error("Error decoding message", zap.Error(err))
			h.hub.SendError(client, "Invalid message")
			continue
		}
		h.Dispatch(ctx, client, msg)
	}
}

// Dispatch はメッセージタイプに基づいて適切なアクションを実行します。
func (h *Handler) Dispatch(ctx context.Context, client *models.Client, msg Message) {
	h.logger.Debug("Received message", zap.String("type", msg.Type), zap.String("userID", client.UserID))

	switch msg.Type {
	case "request_state":
		h.handleRequestState(ctx, client)
	case "submit_turn_choice":
		h.handleSubmitTurnChoice(ctx, client, msg)
	case "run_ai_turn":
		h.handleRunAITurn(ctx, client)
	case "submit_choice":
		h.handleSubmitChoice(ctx, client, msg)
	case "start_gm_session":
		h.handleStartGMSession(ctx, client, msg)
	case "submit_player_choice":
		h.handleSubmitPlayerChoice(ctx, client, msg)
	case "turn_roll":
		h.handleTurnRoll(ctx, client, msg)
	case "ready_for_next_scene":
		h.handleReadyForNextScene(ctx, client)
	case "save_game_state":
		h.handleSaveGameState(ctx, client)
	case "continue_game":
		h.handleContinueGame(ctx, client)
	default:
		h.logger.Info("Received unknown message type", zap.String("type", msg.Type))
		h.hub.SendError(client, fmt.Sprintf("Unknown message type %q", msg.Type))
	}
}

// activeScene returns the room's scene index and its template.
func (h *Handler) activeScene(ctx context.Context, roomID string) (int, scene.Template, error) {
	idx, ok, err := h.store.CurrentScene(ctx, roomID)
	if err != nil {
		return 0, scene.Template{}, err
	}
	if !ok {
		return 0, scene.Template{}, errors.New("room has no active scene")
	}
	tmpl, err := h.catalog.Template(idx)
	if err != nil {
		return 0, scene.Template{}, err
	}
	return idx, tmpl, nil
}

// fail はエラーを操作したクライアントだけに返します。
// 検証エラーと状態破損はそのまま、バックエンドの障害は内部エラーとして伝えます。
func (h *Handler) fail(client *models.Client, err error) {
	var (
		unknownRole   *turn.UnknownRoleError
		unknownChoice *turn.UnknownChoiceError
		invalidPlayer *gm.InvalidPlayerError
		corrupt       *state.StateCorruptionError
	)
	switch {
	case errors.As(err, &unknownRole), errors.As(err, &unknownChoice), errors.As(err, &invalidPlayer),
		errors.As(err, &corrupt), errors.Is(err, scene.ErrUnknownScene), errors.Is(err, state.ErrTurnsExhausted):
		h.logger.Info("Rejected client action", zap.String("roomID", client.RoomID), zap.String("userID", client.UserID), zap.Error(err))
		h.hub.SendError(client, err.Error())
	default:
		h.logger.Error("Action failed", zap.String("roomID", client.RoomID), zap.String("userID", client.UserID), zap.Error(err))
		h.hub.SendError(client, "Internal error")
	}
}
