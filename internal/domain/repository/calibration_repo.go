package repository

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// CalibrationRepository определяет методы для работы с историей калибровок
type CalibrationRepository interface {
	Create(calibration *entity.DifficultyCalibration) error
	GetByID(id string) (*entity.DifficultyCalibration, error)
	List(limit, offset int) ([]entity.DifficultyCalibration, error)
}
