package models

// TurnResult は1回の判定結果です。Redisのturn_resultsハッシュにJSONで保存されます。
type TurnResult struct {
	Role          string `json:"role"`
	ChoiceID      string `json:"choiceId"`
	Grade         string `json:"grade"`
	Dice          int    `json:"dice"`
	AppliedStat   string `json:"appliedStat"`
	StatValue     int    `json:"statValue"`
	Modifier      int    `json:"modifier"`
	Total         int    `json:"total"`
	CharacterID   string `json:"characterId,omitempty"`
	CharacterName string `json:"characterName,omitempty"`
	AI            bool   `json:"ai,omitempty"` // AIによるシミュレーション結果
}
