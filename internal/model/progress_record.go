package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressRecord 用户在某道题上的作答记录，solved 以此表为准
type ProgressRecord struct {
	AttemptID  string     `gorm:"primaryKey;type:varchar(36)" json:"attemptId"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_progress_user_question" json:"userId"`
	QuestionID string     `gorm:"size:64;not null;uniqueIndex:idx_progress_user_question" json:"questionId"`
	Solved     bool       `gorm:"not null;default:false;index" json:"solved"`
	SolvedAt   *time.Time `json:"solvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}

func (r *ProgressRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.AttemptID == "" {
		r.AttemptID = uuid.New().String()
	}
	return
}
