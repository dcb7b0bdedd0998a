// Package state はルームごとのセッション状態をRedisに保存します。
//
// キーはすべて game:{roomID}: で始まります。複数フィールドにまたがる操作は
// トランザクションで囲みません。手番の進行はLuaスクリプトで読んだインデックスと照合します。
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"trpgserver/internal/gm"
	"trpgserver/internal/scene"
	"trpgserver/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultTTL は準備状態・判定結果・ロックの有効期限です。
const DefaultTTL = 3600 * time.Second

// ErrTurnsExhausted is returned once every role in the turn order has acted.
var ErrTurnsExhausted = errors.New("turn sequence exhausted")

// ErrTurnTaken は同じ手番が既に他の操作で進められたことを示します。
var ErrTurnTaken = errors.New("turn was already taken")

// advanceTurnScript は現在のインデックスがARGV[1]のときだけINCRします。
// 戻り値は新しいインデックス、不一致なら-1、未初期化なら-2です。
var advanceTurnScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
  return -2
end
if tonumber(cur) ~= tonumber(ARGV[1]) then
  return -1
end
return redis.call("INCR", KEYS[1])
`)

// StateCorruptionError はターン情報が未初期化または壊れていることを示します。
// 呼び出し側はリトライせずに再初期化してください。
type StateCorruptionError struct {
	RoomID     string
	SceneIndex int
	Reason     string

	err error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("room %s scene %d: corrupted turn state: %s", e.RoomID, e.SceneIndex, e.Reason)
}

func (e *StateCorruptionError) Unwrap() error {
	return e.err
}

// Store is the session state store. It is safe for concurrent use.
type Store struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New はRedisクライアントを受け取ってStoreを作ります。クライアントは呼び出し側が管理します。
func New(rdb redis.UniversalClient, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{rdb: rdb, logger: logger, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func roomKey(roomID, suffix string) string {
	return "game:" + roomID + ":" + suffix
}

func sceneKey(roomID string, sceneIndex int, suffix string) string {
	return fmt.Sprintf("game:%s:scene:%d:%s", roomID, sceneIndex, suffix)
}

// シーン

// SetScene overwrites the room's scene pointer.
func (s *Store) SetScene(ctx context.Context, roomID string, index int) error {
	if err := s.rdb.Set(ctx, roomKey(roomID, "scene_index"), index, 0).Err(); err != nil {
		return fmt.Errorf("set scene: %w", err)
	}
	return nil
}

// CurrentScene returns the scene pointer. ok is false when it was never set.
func (s *Store) CurrentScene(ctx context.Context, roomID string) (int, bool, error) {
	index, err := s.rdb.Get(ctx, roomKey(roomID, "scene_index")).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get scene: %w", err)
	}
	return index, true, nil
}

// AdvanceScene は無条件にcurrent+1を書き込みます。
// 同時に呼ばれると二重に進む可能性があるため、通常はAdvanceSceneOnceを使います。
func (s *Store) AdvanceScene(ctx context.Context, roomID string, current int) (int, error) {
	next := current + 1
	if err := s.SetScene(ctx, roomID, next); err != nil {
		return 0, err
	}
	return next, nil
}

// AdvanceSceneOnce advances from current only for the first caller per scene.
// Later callers get advanced=false and the same next index.
func (s *Store) AdvanceSceneOnce(ctx context.Context, roomID string, current int) (int, bool, error) {
	next := current + 1
	won, err := s.rdb.SetNX(ctx, sceneKey(roomID, current, "advance_lock"), 1, s.ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("acquire advance lock: %w", err)
	}
	if !won {
		return next, false, nil
	}
	if err := s.SetScene(ctx, roomID, next); err != nil {
		return 0, false, err
	}
	s.logger.Info("Scene advanced", zap.String("roomID", roomID), zap.Int("sceneIndex", next))
	return next, true, nil
}

// ReleaseAdvanceLock はシーンの前進ロックを外します。保存データから同じシーンに戻るときに使います。
func (s *Store) ReleaseAdvanceLock(ctx context.Context, roomID string, sceneIndex int) error {
	if err := s.rdb.Del(ctx, sceneKey(roomID, sceneIndex, "advance_lock")).Err(); err != nil {
		return fmt.Errorf("release advance lock: %w", err)
	}
	return nil
}

// 選択 (ラウンド制)

// SubmitChoice records a role's choice. The last write wins.
func (s *Store) SubmitChoice(ctx context.Context, roomID string, sceneIndex int, role, choiceID string) error {
	if err := s.rdb.HSet(ctx, sceneKey(roomID, sceneIndex, "choices"), role, choiceID).Err(); err != nil {
		return fmt.Errorf("submit choice: %w", err)
	}
	return nil
}

func (s *Store) GetChoices(ctx context.Context, roomID string, sceneIndex int) (map[string]string, error) {
	choices, err := s.rdb.HGetAll(ctx, sceneKey(roomID, sceneIndex, "choices")).Result()
	if err != nil {
		return nil, fmt.Errorf("get choices: %w", err)
	}
	return choices, nil
}

// AllSubmitted はexpected件以上の選択が揃っているかを返します。
// 読み取りと判定の間に他の書き込みが入り得るので、トリガーのヒントとして扱います。
func (s *Store) AllSubmitted(ctx context.Context, roomID string, sceneIndex int, expected int) (bool, error) {
	n, err := s.rdb.HLen(ctx, sceneKey(roomID, sceneIndex, "choices")).Result()
	if err != nil {
		return false, fmt.Errorf("count choices: %w", err)
	}
	return int(n) >= expected, nil
}

// ClearChoices removes the round choices of a scene.
func (s *Store) ClearChoices(ctx context.Context, roomID string, sceneIndex int) error {
	if err := s.rdb.Del(ctx, sceneKey(roomID, sceneIndex, "choices")).Err(); err != nil {
		return fmt.Errorf("clear choices: %w", err)
	}
	return nil
}

// ターン順

// InitializeTurnOrder はテンプレートのターン順を保存し、インデックスを0にします。
// ターン定義のないシーンでは何もしません。
func (s *Store) InitializeTurnOrder(ctx context.Context, roomID string, sceneIndex int, tmpl scene.Template) error {
	roles := tmpl.RoleSequence()
	if len(roles) == 0 {
		return nil
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode turn order: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sceneKey(roomID, sceneIndex, "turn_order"), data, 0)
		pipe.Set(ctx, sceneKey(roomID, sceneIndex, "current_turn_index"), 0, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize turn order: %w", err)
	}
	return nil
}

// TurnOrder returns the stored role sequence, or nil when unset.
func (s *Store) TurnOrder(ctx context.Context, roomID string, sceneIndex int) ([]string, error) {
	data, err := s.rdb.Get(ctx, sceneKey(roomID, sceneIndex, "turn_order")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get turn order: %w", err)
	}
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "undecodable turn order", err: err}
	}
	return roles, nil
}

func (s *Store) ClearTurnOrder(ctx context.Context, roomID string, sceneIndex int) error {
	err := s.rdb.Del(ctx,
		sceneKey(roomID, sceneIndex, "turn_order"),
		sceneKey(roomID, sceneIndex, "current_turn_index"),
	).Err()
	if err != nil {
		return fmt.Errorf("clear turn order: %w", err)
	}
	return nil
}

func (s *Store) orderOrCorrupt(ctx context.Context, roomID string, sceneIndex int) ([]string, error) {
	roles, err := s.TurnOrder(ctx, roomID, sceneIndex)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "turn order not initialized"}
	}
	return roles, nil
}

// CurrentTurnRole は現在手番のロールを返します。
// インデックスが範囲外ならStateCorruptionErrorです。全員の手番が終わった後は
// そのエラーがErrTurnsExhaustedもラップします。
func (s *Store) CurrentTurnRole(ctx context.Context, roomID string, sceneIndex int) (string, error) {
	_, role, err := s.CurrentTurn(ctx, roomID, sceneIndex)
	return role, err
}

// CurrentTurn はCurrentTurnRoleと同じですが、手番のインデックスも返します。
func (s *Store) CurrentTurn(ctx context.Context, roomID string, sceneIndex int) (int, string, error) {
	roles, err := s.orderOrCorrupt(ctx, roomID, sceneIndex)
	if err != nil {
		return 0, "", err
	}
	raw, err := s.rdb.Get(ctx, sceneKey(roomID, sceneIndex, "current_turn_index")).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "turn index not initialized"}
	}
	if err != nil {
		return 0, "", fmt.Errorf("get turn index: %w", err)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "non-numeric turn index", err: err}
	}
	if idx < 0 {
		return 0, "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "negative turn index"}
	}
	if idx >= len(roles) {
		return 0, "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "turn index out of bounds", err: ErrTurnsExhausted}
	}
	return idx, roles[idx], nil
}

// AdvanceTurn increments the turn index atomically and returns the role at the
// new index. N concurrent callers observe N distinct indices.
func (s *Store) AdvanceTurn(ctx context.Context, roomID string, sceneIndex int) (string, error) {
	roles, err := s.orderOrCorrupt(ctx, roomID, sceneIndex)
	if err != nil {
		return "", err
	}
	idx, err := s.rdb.Incr(ctx, sceneKey(roomID, sceneIndex, "current_turn_index")).Result()
	if err != nil {
		return "", fmt.Errorf("advance turn: %w", err)
	}
	if idx < 0 {
		return "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "negative turn index"}
	}
	if int(idx) >= len(roles) {
		return "", ErrTurnsExhausted
	}
	return roles[idx], nil
}

// AdvanceTurnFrom はインデックスがexpectedのままのときだけ手番を進めます。
// 他の操作が先に進めていればErrTurnTakenです。1つのexpectedにつき成功するのは1回だけです。
func (s *Store) AdvanceTurnFrom(ctx context.Context, roomID string, sceneIndex, expected int) (string, error) {
	roles, err := s.orderOrCorrupt(ctx, roomID, sceneIndex)
	if err != nil {
		return "", err
	}
	key := sceneKey(roomID, sceneIndex, "current_turn_index")
	idx, err := advanceTurnScript.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return "", fmt.Errorf("advance turn: %w", err)
	}
	switch {
	case idx == -2:
		return "", &StateCorruptionError{RoomID: roomID, SceneIndex: sceneIndex, Reason: "turn index not initialized"}
	case idx < 0:
		return "", ErrTurnTaken
	case int(idx) >= len(roles):
		return "", ErrTurnsExhausted
	}
	return roles[idx], nil
}

// 次シーンへの準備

// MarkReady は準備完了ユーザーを追加し、セットのTTLを更新します。
func (s *Store) MarkReady(ctx context.Context, roomID, userID string) error {
	key := roomKey(roomID, "next_scene_ready_users")
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, userID)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

// GetReady returns the ready user ids, sorted.
func (s *Store) GetReady(ctx context.Context, roomID string) ([]string, error) {
	users, err := s.rdb.SMembers(ctx, roomKey(roomID, "next_scene_ready_users")).Result()
	if err != nil {
		return nil, fmt.Errorf("get ready users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) ClearReady(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, roomKey(roomID, "next_scene_ready_users")).Err(); err != nil {
		return fmt.Errorf("clear ready users: %w", err)
	}
	return nil
}

// AllReady reports whether every user in userIDs is marked ready.
func (s *Store) AllReady(ctx context.Context, roomID string, userIDs []string) (bool, error) {
	ready, err := s.GetReady(ctx, roomID)
	if err != nil {
		return false, err
	}
	set := make(map[string]bool, len(ready))
	for _, u := range ready {
		set[u] = true
	}
	for _, u := range userIDs {
		if !set[u] {
			return false, nil
		}
	}
	return true, nil
}

// 判定結果・出目

func (s *Store) hsetWithTTL(ctx context.Context, key, field string, value interface{}) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// RecordTurnResult stores a user's result for the current turn.
func (s *Store) RecordTurnResult(ctx context.Context, roomID, userID string, result models.TurnResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode turn result: %w", err)
	}
	if err := s.hsetWithTTL(ctx, roomKey(roomID, "turn_results"), userID, data); err != nil {
		return fmt.Errorf("record turn result: %w", err)
	}
	return nil
}

// GetAllTurnResults はユーザーID別の判定結果を返します。壊れたエントリはログに残して読み飛ばします。
func (s *Store) GetAllTurnResults(ctx context.Context, roomID string) (map[string]models.TurnResult, error) {
	raw, err := s.rdb.HGetAll(ctx, roomKey(roomID, "turn_results")).Result()
	if err != nil {
		return nil, fmt.Errorf("get turn results: %w", err)
	}
	results := make(map[string]models.TurnResult, len(raw))
	for userID, data := range raw {
		var r models.TurnResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.logger.Warn("Skipping undecodable turn result", zap.String("roomID", roomID), zap.String("userID", userID), zap.Error(err))
			continue
		}
		results[userID] = r
	}
	return results, nil
}

func (s *Store) ClearTurnResults(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, roomKey(roomID, "turn_results")).Err(); err != nil {
		return fmt.Errorf("clear turn results: %w", err)
	}
	return nil
}

// RecordTurnRoll stores a player's die roll for the current turn.
func (s *Store) RecordTurnRoll(ctx context.Context, roomID, playerID string, roll int) error {
	if err := s.hsetWithTTL(ctx, roomKey(roomID, "turn_rolls"), playerID, roll); err != nil {
		return fmt.Errorf("record turn roll: %w", err)
	}
	return nil
}

func (s *Store) GetAllTurnRolls(ctx context.Context, roomID string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, roomKey(roomID, "turn_rolls")).Result()
	if err != nil {
		return nil, fmt.Errorf("get turn rolls: %w", err)
	}
	rolls := make(map[string]int, len(raw))
	for playerID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.logger.Warn("Skipping non-numeric turn roll", zap.String("roomID", roomID), zap.String("playerID", playerID), zap.Error(err))
			continue
		}
		rolls[playerID] = n
	}
	return rolls, nil
}

func (s *Store) ClearTurnRolls(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, roomKey(roomID, "turn_rolls")).Err(); err != nil {
		return fmt.Errorf("clear turn rolls: %w", err)
	}
	return nil
}

// ClaimResolution はGMセッションのturnを解決する権利を取ります。最初の呼び出しだけがtrueです。
func (s *Store) ClaimResolution(ctx context.Context, roomID, sessionID string, turn int) (bool, error) {
	won, err := s.rdb.SetNX(ctx, resolveKey(roomID, sessionID, turn), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim resolution: %w", err)
	}
	return won, nil
}

// ReleaseResolution はClaimResolutionで取った権利を手放します。
func (s *Store) ReleaseResolution(ctx context.Context, roomID, sessionID string, turn int) error {
	if err := s.rdb.Del(ctx, resolveKey(roomID, sessionID, turn)).Err(); err != nil {
		return fmt.Errorf("release resolution: %w", err)
	}
	return nil
}

func resolveKey(roomID, sessionID string, turn int) string {
	return roomKey(roomID, fmt.Sprintf("gm:%s:turn:%d:resolve_lock", sessionID, turn))
}

// GMモードの状態キャッシュ

// SaveGameState caches the GM session state for the room.
func (s *Store) SaveGameState(ctx context.Context, roomID string, st gm.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	if err := s.rdb.Set(ctx, roomKey(roomID, "state"), data, 0).Err(); err != nil {
		return fmt.Errorf("save game state: %w", err)
	}
	return nil
}

// LoadGameState returns the cached state. ok is false when nothing is cached.
func (s *Store) LoadGameState(ctx context.Context, roomID string) (gm.State, bool, error) {
	data, err := s.rdb.Get(ctx, roomKey(roomID, "state")).Bytes()
	if errors.Is(err, redis.Nil) {
		return gm.State{}, false, nil
	}
	if err != nil {
		return gm.State{}, false, fmt.Errorf("load game state: %w", err)
	}
	var st gm.State
	if err := json.Unmarshal(data, &st); err != nil {
		return gm.State{}, false, fmt.Errorf("decode game state: %w", err)
	}
	return st, true, nil
}

// ResetRoom はルームの付随キーを削除します。sceneIndexのシーン固有キーも対象です。
func (s *Store) ResetRoom(ctx context.Context, roomID string, sceneIndex int) error {
	err := s.rdb.Del(ctx,
		roomKey(roomID, "scene_index"),
		roomKey(roomID, "next_scene_ready_users"),
		roomKey(roomID, "turn_results"),
		roomKey(roomID, "turn_rolls"),
		roomKey(roomID, "state"),
		sceneKey(roomID, sceneIndex, "choices"),
		sceneKey(roomID, sceneIndex, "turn_order"),
		sceneKey(roomID, sceneIndex, "current_turn_index"),
		sceneKey(roomID, sceneIndex, "advance_lock"),
	).Err()
	if err != nil {
		return fmt.Errorf("reset room: %w", err)
	}
	s.logger.Info("Room state reset", zap.String("roomID", roomID))
	return nil
}
