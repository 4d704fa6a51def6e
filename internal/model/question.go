package model

import "time"

// swagger:model Question
type Question struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	Requirements []string  `gorm:"type:text;serializer:json" json:"requirements"`
	Difficulty   string    `gorm:"size:20;default:'easy'" json:"difficulty"` // easy, medium, hard
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Question) TableName() string {
	return "questions"
}
