package dto

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// ObjectiveTargetRequest — учебная цель с целевым числом вопросов
type ObjectiveTargetRequest struct {
	ObjectiveID string `json:"objective_id" binding:"required"`
	TargetCount int    `json:"target_count" binding:"required,min=1"`
}

// ConstraintsRequest — ограничения на состав экзамена
type ConstraintsRequest struct {
	TotalQuestions           int            `json:"total_questions" binding:"required,min=1"`
	DifficultyMin            float64        `json:"difficulty_min"`
	DifficultyMax            float64        `json:"difficulty_max"`
	QuestionTypeDistribution map[string]int `json:"question_type_distribution"`
	MaxPerObjective          int            `json:"max_per_objective" binding:"omitempty,min=1"`
}

// GenerateExamRequest представляет запрос на генерацию экзамена
type GenerateExamRequest struct {
	LearningObjectives []ObjectiveTargetRequest `json:"learning_objectives" binding:"required,min=1,dive"`
	Constraints        ConstraintsRequest       `json:"constraints" binding:"required"`
	Purpose            string                   `json:"purpose" binding:"omitempty,oneof=diagnostic formative summative placement certification practice"`
}

// ToEntity преобразует запрос в доменные требования
func (r *GenerateExamRequest) ToEntity() entity.ExamRequirements {
	objectives := make([]entity.ObjectiveTarget, len(r.LearningObjectives))
	for i, obj := range r.LearningObjectives {
		objectives[i] = entity.ObjectiveTarget{
			ObjectiveID: obj.ObjectiveID,
			TargetCount: obj.TargetCount,
		}
	}
	return entity.ExamRequirements{
		LearningObjectives: objectives,
		Constraints: entity.ExamConstraints{
			TotalQuestions:           r.Constraints.TotalQuestions,
			DifficultyMin:            r.Constraints.DifficultyMin,
			DifficultyMax:            r.Constraints.DifficultyMax,
			QuestionTypeDistribution: r.Constraints.QuestionTypeDistribution,
			MaxPerObjective:          r.Constraints.MaxPerObjective,
		},
		Purpose: r.Purpose,
	}
}

// StartSessionRequest представляет запрос на открытие сессии
type StartSessionRequest struct {
	ExamID    string `json:"exam_id" binding:"required,uuid"`
	LearnerID string `json:"learner_id" binding:"required,max=64"`
	// InitialAbility — стартовая оценка способности (например, из placement-теста)
	InitialAbility *float64 `json:"initial_ability" binding:"omitempty,gte=-4,lte=4"`
}

// SubmitResponseRequest представляет отправку ответа на вопрос
type SubmitResponseRequest struct {
	ItemID          uint   `json:"item_id" binding:"required"`
	RawResponse     string `json:"raw_response" binding:"required,max=2000"`
	ResponseTimeMs  int64  `json:"response_time_ms" binding:"gte=0"`
	ConfidenceLevel *int   `json:"confidence_level" binding:"omitempty,min=1,max=5"`
}

// ObservationRequest — одно наблюдение матрицы ответов для калибровки
type ObservationRequest struct {
	LearnerID      string `json:"learner_id" binding:"required"`
	ItemID         uint   `json:"item_id" binding:"required"`
	Correct        bool   `json:"correct"`
	ResponseTimeMs int64  `json:"response_time_ms" binding:"gte=0"`
}

// RunCalibrationRequest представляет запрос на запуск калибровки.
// Если Observations пуст, берётся снимок накопленного журнала ответов.
type RunCalibrationRequest struct {
	SnapshotLimit int                  `json:"snapshot_limit" binding:"omitempty,min=1"`
	Observations  []ObservationRequest `json:"observations" binding:"omitempty,dive"`
}

// ToObservations преобразует запрос в доменные наблюдения
func (r *RunCalibrationRequest) ToObservations() []entity.ResponseObservation {
	if len(r.Observations) == 0 {
		return nil
	}
	observations := make([]entity.ResponseObservation, len(r.Observations))
	for i, obs := range r.Observations {
		observations[i] = entity.ResponseObservation{
			LearnerID:      obs.LearnerID,
			ItemID:         obs.ItemID,
			Correct:        obs.Correct,
			ResponseTimeMs: obs.ResponseTimeMs,
		}
	}
	return observations
}
