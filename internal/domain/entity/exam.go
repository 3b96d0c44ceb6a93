package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Константы назначения экзамена
const (
	ExamPurposeDiagnostic    = "diagnostic"
	ExamPurposeFormative     = "formative"
	ExamPurposeSummative     = "summative"
	ExamPurposePlacement     = "placement"
	ExamPurposeCertification = "certification"
	ExamPurposePractice      = "practice"
)

// ValidExamPurposes содержит все допустимые назначения экзамена
var ValidExamPurposes = map[string]bool{
	ExamPurposeDiagnostic:    true,
	ExamPurposeFormative:     true,
	ExamPurposeSummative:     true,
	ExamPurposePlacement:     true,
	ExamPurposeCertification: true,
	ExamPurposePractice:      true,
}

// ObjectiveTarget описывает учебную цель и целевое количество вопросов по ней.
// Порядок целей в ExamRequirements значим: генератор обрабатывает их по порядку.
type ObjectiveTarget struct {
	ObjectiveID string `json:"objective_id"`
	TargetCount int    `json:"target_count"`
}

// ExamConstraints содержит ограничения на состав экзамена
type ExamConstraints struct {
	TotalQuestions int     `json:"total_questions"`
	DifficultyMin  float64 `json:"difficulty_min"`
	DifficultyMax  float64 `json:"difficulty_max"`
	// QuestionTypeDistribution — квоты на количество вопросов по типам
	// (опционально). Перечисленный тип не превышает свою квоту на весь пул;
	// типы вне карты не ограничены.
	QuestionTypeDistribution map[string]int `json:"question_type_distribution,omitempty"`
	MaxPerObjective          int            `json:"max_per_objective"`
}

// ExamRequirements описывает требования к генерируемому экзамену
type ExamRequirements struct {
	LearningObjectives []ObjectiveTarget `json:"learning_objectives"`
	Constraints        ExamConstraints   `json:"constraints"`
	Purpose            string            `json:"purpose"`
}

// Scan реализует интерфейс sql.Scanner для ExamRequirements (JSONB)
func (r *ExamRequirements) Scan(value interface{}) error {
	if value == nil {
		*r = ExamRequirements{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}
	if len(bytes) == 0 {
		*r = ExamRequirements{}
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// Value реализует интерфейс driver.Valuer для ExamRequirements
func (r ExamRequirements) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Validate проверяет корректность требований
func (r *ExamRequirements) Validate() error {
	if len(r.LearningObjectives) == 0 {
		return errors.New("at least one learning objective is required")
	}
	for _, obj := range r.LearningObjectives {
		if obj.ObjectiveID == "" {
			return errors.New("objective_id cannot be empty")
		}
		if obj.TargetCount <= 0 {
			return fmt.Errorf("objective %q: target_count must be positive", obj.ObjectiveID)
		}
	}
	if r.Constraints.TotalQuestions <= 0 {
		return errors.New("total_questions must be positive")
	}
	if r.Constraints.DifficultyMin > r.Constraints.DifficultyMax {
		return fmt.Errorf("invalid difficulty range [%f, %f]",
			r.Constraints.DifficultyMin, r.Constraints.DifficultyMax)
	}
	for qType, count := range r.Constraints.QuestionTypeDistribution {
		if !ValidQuestionTypes[qType] {
			return fmt.Errorf("unknown question type in distribution: %q", qType)
		}
		if count <= 0 {
			return fmt.Errorf("question type %q: distribution count must be positive", qType)
		}
	}
	if r.Purpose != "" && !ValidExamPurposes[r.Purpose] {
		return fmt.Errorf("unknown exam purpose: %q", r.Purpose)
	}
	return nil
}

// AdaptiveExam представляет собранный экзамен: требования + пул вопросов.
// После создания неизменяем; адаптивная сессия выбирает подмножество пула на лету.
type AdaptiveExam struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	Requirements ExamRequirements `gorm:"type:jsonb;not null" json:"requirements"`
	ItemPoolIDs  UintArray        `gorm:"type:jsonb;not null" json:"item_pool_ids"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (AdaptiveExam) TableName() string {
	return "adaptive_exams"
}

// PoolSize возвращает размер пула вопросов экзамена
func (e *AdaptiveExam) PoolSize() int {
	return len(e.ItemPoolIDs)
}
