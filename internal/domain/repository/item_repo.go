package repository

import (
	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// ItemRepository определяет методы для работы с пулом вопросов
type ItemRepository interface {
	Create(item *entity.QuestionItem) error
	CreateBatch(items []entity.QuestionItem) error
	GetByID(id uint) (*entity.QuestionItem, error)
	GetByIDs(ids []uint) ([]entity.QuestionItem, error)
	Update(item *entity.QuestionItem) error
	Delete(id uint) error

	// GetByObjectives возвращает вопросы, помеченные хотя бы одной из целей,
	// с difficulty в заданном диапазоне
	GetByObjectives(objectives []string, difficultyMin, difficultyMax float64) ([]entity.QuestionItem, error)

	// IncrementExposure атомарно увеличивает счётчик показов вопроса.
	// Счётчик — мягкая эвристика exposure control, строгая согласованность не требуется.
	IncrementExposure(id uint) error

	// ApplyCalibration применяет новые оценки параметров к вопросам пула,
	// повышая params_version. Живые сессии держат снимок старых параметров
	// и свопа не замечают.
	ApplyCalibration(estimates []entity.ItemEstimate) (applied int, err error)

	// Статистика пула
	CountByDifficultyBand(min, max float64) (int64, error)
	GetPoolStats() (total int64, byType map[string]int64, err error)
}
