package models

import (
	"gorm.io/gorm"
)

// SavedSession はGMモードの状態スナップショットです。
// 継続プレイ(continue_game)のためPostgreSQLに保存します。
type SavedSession struct {
	gorm.Model
	RoomID     string `gorm:"uniqueIndex;not null"`
	SessionID  string `gorm:"not null"`
	SceneIndex int    `gorm:"not null;default:0"`
	Turn       int    `gorm:"not null;default:0"`
	State      string `gorm:"type:text;not null"` // GMStateのJSON
	SavedBy    string
}
