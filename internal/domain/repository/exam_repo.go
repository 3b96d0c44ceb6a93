package repository

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// ExamRepository определяет методы для работы с собранными экзаменами
type ExamRepository interface {
	Create(exam *entity.AdaptiveExam) error
	GetByID(id string) (*entity.AdaptiveExam, error)
	List(limit, offset int) ([]entity.AdaptiveExam, error)
	Delete(id string) error
}
