package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// SessionRepo реализует repository.SessionRepository
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo создает новый репозиторий сессий
func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create создает новую сессию
func (r *SessionRepo) Create(session *entity.ExamSession) error {
	return r.db.Create(session).Error
}

// GetByID возвращает сессию по ID
func (r *SessionRepo) GetByID(id string) (*entity.ExamSession, error) {
	var session entity.ExamSession
	err := r.db.First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetWithResponses возвращает сессию вместе с ответами
func (r *SessionRepo) GetWithResponses(id string) (*entity.ExamSession, error) {
	var session entity.ExamSession
	err := r.db.Preload("Responses", func(db *gorm.DB) *gorm.DB {
		return db.Order("exam_responses.id")
	}).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Update сохраняет изменения сессии
func (r *SessionRepo) Update(session *entity.ExamSession) error {
	return r.db.Save(session).Error
}

// SaveResponse сохраняет ответ учащегося
func (r *SessionRepo) SaveResponse(response *entity.ExamResponse) error {
	return r.db.Create(response).Error
}

// GetResponses возвращает ответы сессии в порядке выдачи
func (r *SessionRepo) GetResponses(sessionID string) ([]entity.ExamResponse, error) {
	var responses []entity.ExamResponse
	err := r.db.Where("session_id = ?", sessionID).Order("id").Find(&responses).Error
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// GetResponseLog возвращает снимок журнала ответов завершённых сессий
// для офлайн-калибровки. Читает без блокировок: живые сессии не страдают.
func (r *SessionRepo) GetResponseLog(limit int) ([]entity.ResponseObservation, error) {
	var observations []entity.ResponseObservation
	err := r.db.Raw(`
		SELECT s.learner_id, r.item_id, r.is_correct AS correct, r.response_time_ms
		FROM exam_responses r
		JOIN exam_sessions s ON s.id = r.session_id
		WHERE s.status = ?
		ORDER BY r.id
		LIMIT ?
	`, entity.SessionStatusCompleted, limit).Scan(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

// SaveResults сохраняет итоговый отчёт сессии
func (r *SessionRepo) SaveResults(results *entity.ExamResults) error {
	return r.db.Create(results).Error
}

// GetResultsBySessionID возвращает сохранённый отчёт сессии
func (r *SessionRepo) GetResultsBySessionID(sessionID string) (*entity.ExamResults, error) {
	var results entity.ExamResults
	err := r.db.First(&results, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &results, nil
}
