package service

import (
	"math"
	"time"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/service/catengine"
)

// ResultService собирает итоговый отчёт по завершённой сессии
type ResultService struct {
	config *catengine.Config
}

// NewResultService создает новый сервис результатов
func NewResultService(config *catengine.Config) *ResultService {
	return &ResultService{config: config}
}

// CompileResults строит неизменяемый итоговый отчёт: финальная оценка
// способности, освоение учебных целей, суммарный балл и (для summative и
// certification экзаменов) итог прохождения
func (s *ResultService) CompileResults(
	session *entity.ExamSession,
	responses []entity.ExamResponse,
	poolItems []entity.QuestionItem,
	purpose string,
) *entity.ExamResults {
	itemsByID := make(map[uint]*entity.QuestionItem, len(poolItems))
	for i := range poolItems {
		itemsByID[poolItems[i].ID] = &poolItems[i]
	}

	totalScore, maxScore, correct := 0, 0, 0
	mastery := make(entity.MasteryMap)
	for _, resp := range responses {
		item := itemsByID[resp.ItemID]
		if item == nil {
			continue
		}
		totalScore += resp.PointsEarned
		maxScore += item.CalculatePoints(true)
		if resp.IsCorrect {
			correct++
		}
		for _, tag := range item.ObjectiveTags {
			m := mastery[tag]
			m.Attempted++
			if resp.IsCorrect {
				m.Correct++
			}
			mastery[tag] = m
		}
	}

	// Оценка освоения: доля правильных со сглаживанием Лапласа,
	// при нуле ответов тянется к 0.5
	for tag, m := range mastery {
		m.MasteryEstimate = (float64(m.Correct) + 1) / (float64(m.Attempted) + 2)
		mastery[tag] = m
	}

	results := &entity.ExamResults{
		SessionID:         session.ID,
		ExamID:            session.ExamID,
		LearnerID:         session.LearnerID,
		AbilityEstimate:   session.AbilityEstimate,
		StandardError:     session.StandardError,
		TotalScore:        totalScore,
		MaxScore:          maxScore,
		CorrectAnswers:    correct,
		TotalQuestions:    len(responses),
		ObjectiveMastery:  mastery,
		ConsistencyScore:  s.consistencyScore(session.AbilityEstimate, responses, itemsByID),
		AvgResponseTimeMs: avgResponseTime(responses),
		CompletedAt:       completedAt(session),
	}

	// Порог прохождения определён только для экзаменов с выраженным итогом
	if purpose == entity.ExamPurposeSummative || purpose == entity.ExamPurposeCertification {
		passed := maxScore > 0 && float64(totalScore)/float64(maxScore) >= s.config.PassingScore
		results.Passed = &passed
	}

	return results
}

// consistencyScore измеряет согласованность ответов с моделью: среднее
// |u - P(theta)| по истории, отражённое в [0, 1] (1 — идеальное соответствие).
// Низкое значение указывает на угадывание, усталость или неверную оценку.
func (s *ResultService) consistencyScore(theta float64, responses []entity.ExamResponse, items map[uint]*entity.QuestionItem) float64 {
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	counted := 0
	for _, resp := range responses {
		item := items[resp.ItemID]
		if item == nil {
			continue
		}
		p := item.IRTParams.ProbabilityCorrect(theta)
		u := 0.0
		if resp.IsCorrect {
			u = 1.0
		}
		sum += math.Abs(u - p)
		counted++
	}
	if counted == 0 {
		return 0
	}
	score := 1 - sum/float64(counted)
	if score < 0 {
		return 0
	}
	return score
}

// avgResponseTime — среднее время ответа по сессии в миллисекундах
func avgResponseTime(responses []entity.ExamResponse) int64 {
	if len(responses) == 0 {
		return 0
	}
	var total int64
	for _, resp := range responses {
		total += resp.ResponseTimeMs
	}
	return total / int64(len(responses))
}

func completedAt(session *entity.ExamSession) time.Time {
	if session.CompletedAt != nil {
		return *session.CompletedAt
	}
	return time.Now()
}
