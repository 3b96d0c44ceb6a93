package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ResponseObservation — одно наблюдение из матрицы ответов для калибровки.
// Способность учащегося не передаётся: она интегрируется калибровщиком как
// скрытая переменная.
type ResponseObservation struct {
	LearnerID      string `json:"learner_id"`
	ItemID         uint   `json:"item_id"`
	Correct        bool   `json:"correct"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// ItemEstimate — оценённые параметры одного вопроса со стандартными ошибками
type ItemEstimate struct {
	ItemID        uint      `json:"item_id"`
	Params        IRTParams `json:"params"`
	SEDiscrimination float64 `json:"se_discrimination"`
	SEDifficulty     float64 `json:"se_difficulty"`
	ResponseCount    int     `json:"response_count"`
}

// ItemEstimateList - пользовательский тип для хранения оценок в JSONB
type ItemEstimateList []ItemEstimate

// Scan реализует интерфейс sql.Scanner для ItemEstimateList
func (o *ItemEstimateList) Scan(value interface{}) error {
	if value == nil {
		*o = ItemEstimateList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}
	if len(bytes) == 0 {
		*o = ItemEstimateList{}
		return nil
	}
	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для ItemEstimateList
func (o ItemEstimateList) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// FitStatistics содержит статистики качества подгонки калибровки
type FitStatistics struct {
	LogLikelihood float64 `gorm:"not null;default:0" json:"log_likelihood"`
	// Converged=false означает, что EM упёрся в лимит итераций.
	// Результаты при этом возвращаются, но помечены как низкодоверительные.
	Converged  bool `gorm:"not null;default:false" json:"converged"`
	Iterations int  `gorm:"not null;default:0" json:"iterations"`
}

// DifficultyCalibration — результат калибровки параметров вопросов.
// После завершения не мутируется; применение оценок к пулу — отдельный
// явный шаг с повышением версии параметров.
type DifficultyCalibration struct {
	ID            string           `gorm:"primaryKey;size:36" json:"id"`
	SampleSize    int              `gorm:"not null" json:"sample_size"`
	ItemEstimates ItemEstimateList `gorm:"type:jsonb;not null" json:"item_estimates"`
	// SkippedItemIDs — вопросы, исключённые из переоценки из-за нехватки ответов
	SkippedItemIDs UintArray     `gorm:"type:jsonb;not null" json:"skipped_item_ids"`
	FitStats       FitStatistics `gorm:"embedded;embeddedPrefix:fit_" json:"fit_statistics"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (DifficultyCalibration) TableName() string {
	return "difficulty_calibrations"
}
