package utils

import (
	"time"

	"trpgserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SavedSessionRetention は保存セッションを残す期間です。
const SavedSessionRetention = 30 * 24 * time.Hour

// PurgeStaleSessions は retention の間更新されていない保存セッションを削除します。
func PurgeStaleSessions(db *gorm.DB, retention time.Duration, logger *zap.Logger) (int64, error) {
	result := db.Where("updated_at <= ?", time.Now().Add(-retention)).Delete(&models.SavedSession{})
	if result.Error != nil {
		logger.Error("古い保存セッションの削除に失敗しました", zap.Error(result.Error))
		return 0, result.Error
	}
	logger.Info("古い保存セッションの削除完了", zap.Int64("sessions_deleted", result.RowsAffected))
	return result.RowsAffected, nil
}

// CronCleaner はスケジューラを起動して返します。停止は呼び出し側でStopを呼びます。
func CronCleaner(db *gorm.DB, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 保存セッションの削除ジョブ（"分 時 日 月 曜日"）
	_, err := c.AddFunc("0 3 * * *", func() {
		logger.Info("古い保存セッションを削除する処理を開始")
		PurgeStaleSessions(db, SavedSessionRetention, logger)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
