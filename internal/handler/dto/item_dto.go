package dto

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// IRTParamsRequest — стартовые параметры 3PL модели вопроса.
// Для нового вопроса обычно задаются экспертной оценкой и позже
// уточняются калибровкой.
type IRTParamsRequest struct {
	Discrimination float64 `json:"discrimination" binding:"required,gt=0"`
	Difficulty     float64 `json:"difficulty" binding:"gte=-4,lte=4"`
	Guessing       float64 `json:"guessing" binding:"gte=0,lt=1"`
}

// CreateItemRequest представляет вопрос для добавления в пул
type CreateItemRequest struct {
	QuestionType  string           `json:"question_type" binding:"required,max=30"`
	ObjectiveTags []string         `json:"objective_tags" binding:"required,min=1"`
	IRTParams     IRTParamsRequest `json:"irt_params" binding:"required"`
	ContentRef    string           `json:"content_ref" binding:"required,max=255"`
	AnswerKey     string           `json:"answer_key" binding:"required,max=500"`
	PointValue    int              `json:"point_value" binding:"omitempty,min=1"`
}

// ToEntity преобразует запрос в доменный вопрос
func (r *CreateItemRequest) ToEntity() entity.QuestionItem {
	points := r.PointValue
	if points == 0 {
		points = 1
	}
	return entity.QuestionItem{
		QuestionType:  r.QuestionType,
		ObjectiveTags: entity.StringArray(r.ObjectiveTags),
		IRTParams: entity.IRTParams{
			Discrimination: r.IRTParams.Discrimination,
			Difficulty:     r.IRTParams.Difficulty,
			Guessing:       r.IRTParams.Guessing,
		},
		ContentRef: r.ContentRef,
		AnswerKey:  r.AnswerKey,
		PointValue: points,
	}
}

// CreateItemBatchRequest — пакетная загрузка вопросов одной транзакцией
type CreateItemBatchRequest struct {
	Items []CreateItemRequest `json:"items" binding:"required,min=1,max=500,dive"`
}
