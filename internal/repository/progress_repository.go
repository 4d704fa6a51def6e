package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pseudo_practice_backend/internal/model"
	"pseudo_practice_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressRepository 处理作答记录（progress_records）的数据库操作
type ProgressRepository struct {
	DB *gorm.DB
}

// NewProgressRepository 创建新的作答记录仓库实例
func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// GetOrCreate 按 (user, question) 查找或插入，依赖唯一索引保证并发下只有一条记录。
// created 为 true 表示本次调用新建了记录。
func (r *ProgressRepository) GetOrCreate(ctx context.Context, userID uint, questionID string) (*model.ProgressRecord, bool, error) {
	record := &model.ProgressRecord{UserID: userID, QuestionID: questionID}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, false, storeError("insert progress record", res.Error)
	}
	if res.RowsAffected == 1 {
		return record, true, nil
	}

	existing, err := r.FindByUserAndQuestion(ctx, userID, questionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByUserAndQuestion 查找用户在某道题上的记录
func (r *ProgressRepository) FindByUserAndQuestion(ctx context.Context, userID uint, questionID string) (*model.ProgressRecord, error) {
	var record model.ProgressRecord
	err := r.DB.WithContext(ctx).Where("user_id = ? AND question_id = ?", userID, questionID).First(&record).Error
	if err != nil {
		return nil, storeError("find progress record", err)
	}
	return &record, nil
}

// FindByAttemptID 按 attemptId 查找记录
func (r *ProgressRepository) FindByAttemptID(ctx context.Context, attemptID string) (*model.ProgressRecord, error) {
	var record model.ProgressRecord
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&record).Error
	if err != nil {
		return nil, storeError("find progress record", err)
	}
	return &record, nil
}

// MarkSolved 只在 solved=false 时更新，重复调用是 no-op。
// 返回值表示本次调用是否完成了 false→true 的转换。
func (r *ProgressRepository) MarkSolved(ctx context.Context, attemptID string) (bool, error) {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&model.ProgressRecord{}).
		Where("attempt_id = ? AND solved = ?", attemptID, false).
		Updates(map[string]interface{}{"solved": true, "solved_at": now})
	if res.Error != nil {
		return false, storeError("mark progress solved", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Restore 用文档内容重建丢失的记录，记录已存在时不覆盖
func (r *ProgressRepository) Restore(ctx context.Context, record *model.ProgressRecord) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
	if err != nil {
		return storeError("restore progress record", err)
	}
	return nil
}

// ListUnsolved 按 attemptId 游标分页列出未解决的记录
func (r *ProgressRepository) ListUnsolved(ctx context.Context, afterAttemptID string, limit int) ([]model.ProgressRecord, error) {
	var records []model.ProgressRecord
	err := r.DB.WithContext(ctx).
		Where("solved = ? AND attempt_id > ?", false, afterAttemptID).
		Order("attempt_id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, storeError("list unsolved progress records", err)
	}
	return records, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", util.ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %w", util.ErrStoreUnavailable, op, err)
}
