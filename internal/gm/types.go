// Package gm はゲームマスター(ナレーション生成サービス)とやり取りする
// セッション状態(State)と応答(Result)の型、正規化とマージを提供します。
package gm

import (
	"encoding/json"
	"fmt"
)

// Scenario はシナリオのメタ情報です。
type Scenario struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// World は世界の状態です。
type World struct {
	Time         string `json:"time"`
	Location     string `json:"location"`
	PrevLocation string `json:"prev_location,omitempty"`
	Notes        string `json:"notes"`
}

// Item はアイテムまたは呪文です。入力では文字列のみの形式も受け付けます。
type Item struct {
	Name    string `json:"name"`
	Charges *int   `json:"charges,omitempty"`
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*it = Item{Name: name}
		return nil
	}
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("item: %w", err)
	}
	*it = Item(p)
	return nil
}

// Sheet はキャラクターシートです。
type Sheet struct {
	Stats  map[string]int `json:"stats"`
	Skills []string       `json:"skills"`
	Items  []Item         `json:"items"`
	Spells []Item         `json:"spells"`
	HP     int            `json:"hp"`
	Status []string       `json:"status"`
	Notes  string         `json:"notes"`
}

// Member はパーティーの1人です。
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Sheet  Sheet  `json:"sheet"`
	Memory string `json:"memory"`
}

// LogEntry はセッションログの1行です。
type LogEntry struct {
	Turn      int      `json:"turn"`
	Narration string   `json:"narration,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// State is the session state sent to the narrator and advanced by Merge.
type State struct {
	SessionID string                    `json:"session_id"`
	Turn      int                       `json:"turn"`
	Scenario  Scenario                  `json:"scenario"`
	World     World                     `json:"world"`
	Party     []Member                  `json:"party"`
	Log       []LogEntry                `json:"log"`
	HurtCount map[string]int            `json:"hurt_count"`
	Cooldowns map[string]map[string]int `json:"cooldowns"`
}

// WorldPatch は応答に含まれる世界状態の差分です。nilのフィールドは変更しません。
type WorldPatch struct {
	Time         *string `json:"time,omitempty"`
	Location     *string `json:"location,omitempty"`
	PrevLocation *string `json:"prev_location,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// Changes はメンバー1人分の変化です。HPは増減値。
type Changes struct {
	HP     int      `json:"hp"`
	Status []string `json:"status"`
}

// PartyChange pairs a member id with its changes.
type PartyChange struct {
	ID      string  `json:"id"`
	Changes Changes `json:"changes"`
}

// Assess は行動評価です。
type Assess struct {
	PlayerID    string   `json:"player_id"`
	Action      string   `json:"action"`
	Move        bool     `json:"move"`
	Destination *string  `json:"destination"`
	Dangerous   bool     `json:"dangerous"`
	Plausible   string   `json:"plausible"`
	Win         bool     `json:"win"`
	Reasons     []string `json:"reasons"`
}

// Roll は1d6判定の記録です。
type Roll struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
	D6       int    `json:"d6"`
	Outcome  string `json:"outcome"`
}

// Inventory はプレイヤーID別のアイテム変化です。
type Inventory struct {
	Consumed map[string][]string       `json:"consumed"`
	Added    map[string][]Item         `json:"added"`
	Charges  map[string]map[string]int `json:"charges"`
}

// Skills はプレイヤーID別のスキル変化です。
type Skills struct {
	Cooldown map[string]map[string]int `json:"cooldown"`
}

// Update は状態更新の指示です。
type Update struct {
	CharacterHurt    map[string]bool `json:"characterHurt"`
	CurrentLocation  string          `json:"currentLocation"`
	PreviousLocation *string         `json:"previousLocation"`
	Notes            string          `json:"notes"`
	Inventory        Inventory       `json:"inventory"`
	Skills           Skills          `json:"skills"`
}

// Shari は評価・判定・更新のブロックです。
type Shari struct {
	Assess []Assess `json:"assess"`
	Rolls  []Roll   `json:"rolls"`
	Update Update   `json:"update"`
}

// Result is one normalized narrator response.
type Result struct {
	Turn      int               `json:"turn"`
	Narration string            `json:"narration"`
	Personal  map[string]string `json:"personal"`
	World     WorldPatch        `json:"world"`
	Party     []PartyChange     `json:"party"`
	LogAppend []LogEntry        `json:"log_append"`
	Shari     Shari             `json:"shari"`
}
