package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Константы статусов сессии экзамена
const (
	SessionStatusCreated    = "created"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusAbandoned  = "abandoned"
)

// Константы типов адаптивных корректировок
const (
	AdjustmentAbilityUpdate  = "ability_update"
	AdjustmentMethodSwitch   = "method_switch"
	AdjustmentItemSelection  = "item_selection"
	AdjustmentEarlyStop      = "early_stop"
	AdjustmentPoolExhausted  = "pool_exhausted"
)

// AdaptiveAdjustment — запись о решении селектора или оценщика в журнале сессии
type AdaptiveAdjustment struct {
	QuestionNumber int     `json:"question_number"`
	Type           string  `json:"type"`
	OldValue       float64 `json:"old_value"`
	NewValue       float64 `json:"new_value"`
	Reason         string  `json:"reason,omitempty"`
	Timestamp      int64   `json:"timestamp"` // Unix ms
}

// AdjustmentLog - пользовательский тип для хранения журнала корректировок в JSONB
type AdjustmentLog []AdaptiveAdjustment

// Scan реализует интерфейс sql.Scanner для AdjustmentLog
func (o *AdjustmentLog) Scan(value interface{}) error {
	if value == nil {
		*o = AdjustmentLog{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}
	if len(bytes) == 0 {
		*o = AdjustmentLog{}
		return nil
	}
	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для AdjustmentLog
func (o AdjustmentLog) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// ExamSession представляет сессию прохождения экзамена одним учащимся.
// Мутируется только менеджером сессий; один писатель на сессию.
type ExamSession struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ExamID    string `gorm:"size:36;not null;index" json:"exam_id"`
	LearnerID string `gorm:"size:64;not null;index" json:"learner_id"`
	Status    string `gorm:"size:20;not null;default:'created';index" json:"status"`

	// Текущая оценка способности (theta) и её стандартная ошибка
	AbilityEstimate float64 `gorm:"not null;default:0" json:"ability_estimate"`
	StandardError   float64 `gorm:"not null;default:1" json:"standard_error"`

	// AdministeredItems — упорядоченная последовательность выданных вопросов, без повторов
	AdministeredItems   UintArray     `gorm:"type:jsonb;not null" json:"administered_items"`
	AdaptiveAdjustments AdjustmentLog `gorm:"type:jsonb;not null" json:"adaptive_adjustments"`

	// Показатели качества прохождения
	ConsistencyScore  float64 `gorm:"not null;default:0" json:"consistency_score"`
	AvgResponseTimeMs int64   `gorm:"not null;default:0" json:"avg_response_time_ms"`

	Responses []ExamResponse `gorm:"foreignKey:SessionID" json:"responses,omitempty"`

	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (ExamSession) TableName() string {
	return "exam_sessions"
}

// IsActive проверяет, идёт ли сессия (created или in_progress)
func (s *ExamSession) IsActive() bool {
	return s.Status == SessionStatusCreated || s.Status == SessionStatusInProgress
}

// IsTerminated проверяет, находится ли сессия в терминальном статусе
func (s *ExamSession) IsTerminated() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusAbandoned
}

// IsCompleted проверяет, завершена ли сессия штатно
func (s *ExamSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// LastAdministeredItem возвращает ID последнего выданного вопроса (0, если вопросов не было)
func (s *ExamSession) LastAdministeredItem() uint {
	if len(s.AdministeredItems) == 0 {
		return 0
	}
	return s.AdministeredItems[len(s.AdministeredItems)-1]
}
