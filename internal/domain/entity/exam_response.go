package entity

import (
	"time"
)

// ExamResponse представляет ответ учащегося на вопрос в рамках сессии
type ExamResponse struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	SessionID       string `gorm:"size:36;not null;index" json:"session_id"`
	ItemID          uint   `gorm:"not null;index" json:"item_id"`
	RawResponse     string `gorm:"size:2000;not null" json:"raw_response"`
	IsCorrect       bool   `gorm:"not null" json:"is_correct"`
	ResponseTimeMs  int64  `gorm:"not null" json:"response_time_ms"`
	// ConfidenceLevel — самооценка уверенности 1..5 (опционально)
	ConfidenceLevel *int      `json:"confidence_level,omitempty"`
	PointsEarned    int       `gorm:"not null;default:0" json:"points_earned"`
	AnsweredAt      time.Time `gorm:"not null" json:"answered_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (ExamResponse) TableName() string {
	return "exam_responses"
}
