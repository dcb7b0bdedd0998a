package gm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trpgserver/internal/scene"
)

// InvalidPlayerError はパーティーに存在しないプレイヤーIDが行動に含まれていたことを示します。
type InvalidPlayerError struct {
	IDs []string
}

func (e *InvalidPlayerError) Error() string {
	return fmt.Sprintf("invalid player ids: %s", strings.Join(e.IDs, ", "))
}

// Character はクライアントから送られるキャラクター情報です。
type Character struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	RoleID      string         `json:"role_id"`
	Description string         `json:"description"`
	Stats       map[string]int `json:"stats"`
	Skills      []string       `json:"skills"`
	Items       []Item         `json:"items"`
	HP          int            `json:"hp"`
}

// HistoryEntry は会話履歴の1件です。
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewState builds the initial session state from character sheets and the
// active scene. Assistant history entries become log lines.
func NewState(sessionID string, tmpl scene.Template, characters []Character, history []HistoryEntry) State {
	st := State{
		SessionID: sessionID,
		Turn:      tmpl.Index,
		Scenario:  Scenario{Title: tmpl.ID},
		World: World{
			Time:     "night",
			Location: tmpl.Title,
			Notes:    tmpl.Description,
		},
		Party:     make([]Member, 0, len(characters)),
		Log:       []LogEntry{},
		HurtCount: make(map[string]int),
		Cooldowns: make(map[string]map[string]int),
	}
	if st.Scenario.Title == "" {
		st.Scenario.Title = "N/A"
	}
	if st.World.Location == "" {
		st.World.Location = "unknown location"
	}
	for _, c := range characters {
		role := c.RoleID
		if role == "" {
			role = c.Name // ロールがなければ名前で代用
		}
		stats := make(map[string]int, len(c.Stats))
		for k, v := range c.Stats {
			stats[k] = v
		}
		st.Party = append(st.Party, Member{
			ID:   c.ID,
			Name: c.Name,
			Role: role,
			Sheet: Sheet{
				Stats:  stats,
				Skills: append([]string{}, c.Skills...),
				Items:  cloneItems(c.Items),
				Spells: []Item{},
				HP:     c.HP,
				Status: []string{},
				Notes:  c.Description,
			},
		})
	}
	for i, h := range history {
		if h.Role == "assistant" {
			st.Log = append(st.Log, LogEntry{Turn: i, Narration: h.Content})
		}
	}
	return st
}

// PartyIDs returns member ids in party order.
func (s State) PartyIDs() []string {
	ids := make([]string, 0, len(s.Party))
	for _, m := range s.Party {
		ids = append(ids, m.ID)
	}
	return ids
}

// Member looks up a party member by id.
func (s State) Member(id string) (Member, bool) {
	for _, m := range s.Party {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// StatValue はロールに対応するメンバーのステータス値を返します。見つからなければ0。
func (s State) StatValue(role, stat string) int {
	for _, m := range s.Party {
		if m.Role == role {
			return m.Sheet.Stats[stat]
		}
	}
	return 0
}

func (s State) partyIndex() map[string]int {
	idx := make(map[string]int, len(s.Party))
	for i, m := range s.Party {
		idx[m.ID] = i
	}
	return idx
}

func (s State) partySet() map[string]bool {
	set := make(map[string]bool, len(s.Party))
	for _, m := range s.Party {
		set[m.ID] = true
	}
	return set
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := s
	c.Party = make([]Member, len(s.Party))
	for i, m := range s.Party {
		cm := m
		cm.Sheet.Stats = make(map[string]int, len(m.Sheet.Stats))
		for k, v := range m.Sheet.Stats {
			cm.Sheet.Stats[k] = v
		}
		cm.Sheet.Skills = append([]string(nil), m.Sheet.Skills...)
		cm.Sheet.Items = cloneItems(m.Sheet.Items)
		cm.Sheet.Spells = cloneItems(m.Sheet.Spells)
		cm.Sheet.Status = append([]string(nil), m.Sheet.Status...)
		c.Party[i] = cm
	}
	c.Log = make([]LogEntry, len(s.Log))
	for i, e := range s.Log {
		e.Events = append([]string(nil), e.Events...)
		c.Log[i] = e
	}
	c.HurtCount = make(map[string]int, len(s.HurtCount))
	for k, v := range s.HurtCount {
		c.HurtCount[k] = v
	}
	c.Cooldowns = make(map[string]map[string]int, len(s.Cooldowns))
	for pid, skills := range s.Cooldowns {
		bucket := make(map[string]int, len(skills))
		for k, v := range skills {
			bucket[k] = v
		}
		c.Cooldowns[pid] = bucket
	}
	return c
}

func (it Item) clone() Item {
	if it.Charges != nil {
		n := *it.Charges
		it.Charges = &n
	}
	return it
}

func cloneItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.clone())
	}
	return out
}

// Choices はナレーターへ渡す1ターン分の行動です。
// JSONではプレイヤーIDをキーにした行動文と、"_rolls"キーの1d6ヒントになります。
type Choices struct {
	Actions map[string]string
	Rolls   map[string]int
}

func (c Choices) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(c.Actions)+1)
	for pid, text := range c.Actions {
		m[pid] = text
	}
	if len(c.Rolls) > 0 {
		m["_rolls"] = c.Rolls
	}
	return json.Marshal(m)
}

// RollsHint は1~6の範囲にある出目だけを残します。
func RollsHint(rolls map[string]int) map[string]int {
	out := make(map[string]int, len(rolls))
	for pid, v := range rolls {
		if v >= 1 && v <= 6 {
			out[pid] = v
		}
	}
	return out
}

// ValidateChoices checks every action id against the party.
func ValidateChoices(s State, actions map[string]string) error {
	known := s.partySet()
	var bad []string
	for pid := range actions {
		if !known[pid] {
			bad = append(bad, pid)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return &InvalidPlayerError{IDs: bad}
}
