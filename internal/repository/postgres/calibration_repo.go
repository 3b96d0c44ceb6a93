package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// CalibrationRepo реализует repository.CalibrationRepository
type CalibrationRepo struct {
	db *gorm.DB
}

// NewCalibrationRepo создает новый репозиторий истории калибровок
func NewCalibrationRepo(db *gorm.DB) *CalibrationRepo {
	return &CalibrationRepo{db: db}
}

// Create сохраняет завершённую калибровку
func (r *CalibrationRepo) Create(calibration *entity.DifficultyCalibration) error {
	return r.db.Create(calibration).Error
}

// GetByID возвращает калибровку по ID
func (r *CalibrationRepo) GetByID(id string) (*entity.DifficultyCalibration, error) {
	var calibration entity.DifficultyCalibration
	err := r.db.First(&calibration, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &calibration, nil
}

// List возвращает историю калибровок, новые первыми
func (r *CalibrationRepo) List(limit, offset int) ([]entity.DifficultyCalibration, error) {
	var calibrations []entity.DifficultyCalibration
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&calibrations).Error
	if err != nil {
		return nil, err
	}
	return calibrations, nil
}
