package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// ExamRepo реализует repository.ExamRepository
type ExamRepo struct {
	db *gorm.DB
}

// NewExamRepo создает новый репозиторий экзаменов
func NewExamRepo(db *gorm.DB) *ExamRepo {
	return &ExamRepo{db: db}
}

// Create создает новый экзамен
func (r *ExamRepo) Create(exam *entity.AdaptiveExam) error {
	return r.db.Create(exam).Error
}

// GetByID возвращает экзамен по ID
func (r *ExamRepo) GetByID(id string) (*entity.AdaptiveExam, error) {
	var exam entity.AdaptiveExam
	err := r.db.First(&exam, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &exam, nil
}

// List возвращает экзамены постранично, новые первыми
func (r *ExamRepo) List(limit, offset int) ([]entity.AdaptiveExam, error) {
	var exams []entity.AdaptiveExam
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&exams).Error
	if err != nil {
		return nil, err
	}
	return exams, nil
}

// Delete удаляет экзамен
func (r *ExamRepo) Delete(id string) error {
	return r.db.Delete(&entity.AdaptiveExam{}, "id = ?", id).Error
}
