package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trpgserver/internal/gm"
	"trpgserver/models"

	"gorm.io/gorm"
)

// ErrNoSavedSession はルームに保存されたセッションがないことを示します。
var ErrNoSavedSession = errors.New("no saved session")

// SessionRepository はGMモードの状態をPostgreSQLに保存します。
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save upserts the room's snapshot.
func (r *SessionRepository) Save(ctx context.Context, roomID, savedBy string, sceneIndex int, st gm.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode saved session: %w", err)
	}
	row := models.SavedSession{RoomID: roomID}
	err = r.db.WithContext(ctx).
		Where(models.SavedSession{RoomID: roomID}).
		Assign(models.SavedSession{
			SessionID:  st.SessionID,
			SceneIndex: sceneIndex,
			Turn:       st.Turn,
			State:      string(data),
			SavedBy:    savedBy,
		}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load はルームの保存セッションを返します。
func (r *SessionRepository) Load(ctx context.Context, roomID string) (gm.State, int, error) {
	var row models.SavedSession
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gm.State{}, 0, ErrNoSavedSession
	}
	if err != nil {
		return gm.State{}, 0, fmt.Errorf("load session: %w", err)
	}
	var st gm.State
	if err := json.Unmarshal([]byte(row.State), &st); err != nil {
		return gm.State{}, 0, fmt.Errorf("decode saved session: %w", err)
	}
	return st, row.SceneIndex, nil
}
