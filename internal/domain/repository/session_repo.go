package repository

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// SessionRepository определяет методы для работы с сессиями экзаменов
type SessionRepository interface {
	Create(session *entity.ExamSession) error
	GetByID(id string) (*entity.ExamSession, error)
	GetWithResponses(id string) (*entity.ExamSession, error)
	Update(session *entity.ExamSession) error

	// SaveResponse сохраняет ответ учащегося
	SaveResponse(response *entity.ExamResponse) error
	GetResponses(sessionID string) ([]entity.ExamResponse, error)

	// GetResponseLog возвращает снимок журнала ответов по всем завершённым
	// сессиям для офлайн-калибровки. Живые сессии не блокируются.
	GetResponseLog(limit int) ([]entity.ResponseObservation, error)

	// Результаты
	SaveResults(results *entity.ExamResults) error
	GetResultsBySessionID(sessionID string) (*entity.ExamResults, error)
}
