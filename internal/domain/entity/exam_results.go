package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ObjectiveMastery содержит оценку освоения одной учебной цели
type ObjectiveMastery struct {
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
	// MasteryEstimate — эмпирическая доля правильных, сглаженная к 0.5 при малом числе ответов
	MasteryEstimate float64 `json:"mastery_estimate"`
}

// MasteryMap - пользовательский тип для хранения освоения целей в JSONB
type MasteryMap map[string]ObjectiveMastery

// Scan реализует интерфейс sql.Scanner для MasteryMap
func (o *MasteryMap) Scan(value interface{}) error {
	if value == nil {
		*o = MasteryMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}
	if len(bytes) == 0 {
		*o = MasteryMap{}
		return nil
	}
	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для MasteryMap
func (o MasteryMap) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(o)
}

// ExamResults — неизменяемый итоговый отчёт по завершённой сессии
type ExamResults struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"size:36;not null;uniqueIndex" json:"session_id"`
	ExamID    string `gorm:"size:36;not null;index" json:"exam_id"`
	LearnerID string `gorm:"size:64;not null;index" json:"learner_id"`

	AbilityEstimate float64 `gorm:"not null" json:"ability_estimate"`
	StandardError   float64 `gorm:"not null" json:"standard_error"`

	TotalScore     int `gorm:"not null;default:0" json:"total_score"`
	MaxScore       int `gorm:"not null;default:0" json:"max_score"`
	CorrectAnswers int `gorm:"not null;default:0" json:"correct_answers"`
	TotalQuestions int `gorm:"not null;default:0" json:"total_questions"`

	// Passed — nil, если для назначения экзамена порог прохождения не определён
	Passed *bool `json:"passed,omitempty"`

	ObjectiveMastery MasteryMap `gorm:"type:jsonb;not null" json:"objective_mastery"`

	// Показатели качества прохождения
	ConsistencyScore  float64 `gorm:"not null;default:0" json:"consistency_score"`
	AvgResponseTimeMs int64   `gorm:"not null;default:0" json:"avg_response_time_ms"`

	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (ExamResults) TableName() string {
	return "exam_results"
}
