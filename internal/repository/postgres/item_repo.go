package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// ItemRepo реализует repository.ItemRepository
type ItemRepo struct {
	db *gorm.DB
}

// NewItemRepo создает новый репозиторий пула вопросов
func NewItemRepo(db *gorm.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// Create создает новый вопрос
func (r *ItemRepo) Create(item *entity.QuestionItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return r.db.Create(item).Error
}

// CreateBatch создает пакет вопросов в одной транзакции
func (r *ItemRepo) CreateBatch(items []entity.QuestionItem) error {
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %v", apperrors.ErrValidation, i, err)
		}
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
}

// GetByID возвращает вопрос по ID
func (r *ItemRepo) GetByID(id uint) (*entity.QuestionItem, error) {
	var item entity.QuestionItem
	err := r.db.First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetByIDs возвращает вопросы по списку ID (порядок — по возрастанию ID)
func (r *ItemRepo) GetByIDs(ids []uint) ([]entity.QuestionItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []entity.QuestionItem
	err := r.db.Where("id IN ?", []uint(ids)).Order("id").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Update обновляет вопрос
func (r *ItemRepo) Update(item *entity.QuestionItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return r.db.Save(item).Error
}

// Delete удаляет вопрос
func (r *ItemRepo) Delete(id uint) error {
	return r.db.Delete(&entity.QuestionItem{}, id).Error
}

// GetByObjectives возвращает вопросы, помеченные хотя бы одной из целей,
// со сложностью в заданном диапазоне.
// jsonb_exists_any проверяет пересечение JSONB-массива тегов с text[].
func (r *ItemRepo) GetByObjectives(objectives []string, difficultyMin, difficultyMax float64) ([]entity.QuestionItem, error) {
	if len(objectives) == 0 {
		return nil, nil
	}
	var items []entity.QuestionItem
	err := r.db.
		Where("jsonb_exists_any(objective_tags, ?)", pq.Array(objectives)).
		Where("irt_b BETWEEN ? AND ?", difficultyMin, difficultyMax).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// IncrementExposure атомарно увеличивает счётчик показов вопроса
func (r *ItemRepo) IncrementExposure(id uint) error {
	return r.db.Model(&entity.QuestionItem{}).
		Where("id = ?", id).
		UpdateColumn("exposure_count", gorm.Expr("exposure_count + 1")).Error
}

// ApplyCalibration применяет новые оценки параметров, повышая params_version.
// Выполняется в одной транзакции: либо применяются все оценки, либо ни одной.
func (r *ItemRepo) ApplyCalibration(estimates []entity.ItemEstimate) (int, error) {
	applied := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, est := range estimates {
			if err := est.Params.Validate(); err != nil {
				return fmt.Errorf("%w: item %d: %v", apperrors.ErrValidation, est.ItemID, err)
			}
			result := tx.Model(&entity.QuestionItem{}).
				Where("id = ?", est.ItemID).
				Updates(map[string]interface{}{
					"irt_a":          est.Params.Discrimination,
					"irt_b":          est.Params.Difficulty,
					"irt_c":          est.Params.Guessing,
					"params_version": gorm.Expr("params_version + 1"),
				})
			if result.Error != nil {
				return result.Error
			}
			applied += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// CountByDifficultyBand возвращает число вопросов в диапазоне сложности
func (r *ItemRepo) CountByDifficultyBand(min, max float64) (int64, error) {
	var count int64
	err := r.db.Model(&entity.QuestionItem{}).
		Where("irt_b BETWEEN ? AND ?", min, max).
		Count(&count).Error
	return count, err
}

// GetPoolStats возвращает статистику пула: всего вопросов и разбивку по типам
func (r *ItemRepo) GetPoolStats() (int64, map[string]int64, error) {
	var total int64
	if err := r.db.Model(&entity.QuestionItem{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	type typeCount struct {
		QuestionType string
		Count        int64
	}
	var rows []typeCount
	err := r.db.Model(&entity.QuestionItem{}).
		Select("question_type, count(*) as count").
		Group("question_type").
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}

	byType := make(map[string]int64, len(rows))
	for _, row := range rows {
		byType[row.QuestionType] = row.Count
	}
	return total, byType, nil
}
