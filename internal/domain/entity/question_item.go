package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Константы типов вопросов
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
	QuestionTypeShortAnswer    = "short_answer"
	QuestionTypeEssay          = "essay"
	QuestionTypeCode           = "code"
	QuestionTypeMatching       = "matching"
	QuestionTypeDragDrop       = "drag_drop"
	QuestionTypeNumerical      = "numerical"
)

// ValidQuestionTypes содержит все допустимые типы вопросов
var ValidQuestionTypes = map[string]bool{
	QuestionTypeMultipleChoice: true,
	QuestionTypeTrueFalse:      true,
	QuestionTypeShortAnswer:    true,
	QuestionTypeEssay:          true,
	QuestionTypeCode:           true,
	QuestionTypeMatching:       true,
	QuestionTypeDragDrop:       true,
	QuestionTypeNumerical:      true,
}

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Contains проверяет наличие тега в массиве
func (o StringArray) Contains(tag string) bool {
	for _, t := range o {
		if t == tag {
			return true
		}
	}
	return false
}

// UintArray - пользовательский тип для хранения списков ID в JSONB
type UintArray []uint

// Scan реализует интерфейс sql.Scanner для UintArray
func (o *UintArray) Scan(value interface{}) error {
	if value == nil {
		*o = UintArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = UintArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для UintArray
func (o UintArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Contains проверяет, содержится ли ID в массиве
func (o UintArray) Contains(id uint) bool {
	for _, v := range o {
		if v == id {
			return true
		}
	}
	return false
}

// IRTParams содержит параметры трёхпараметрической логистической модели (3PL)
type IRTParams struct {
	// Discrimination (a) — насколько резко вопрос разделяет сильных и слабых. Всегда > 0.
	Discrimination float64 `gorm:"column:irt_a;not null;default:1.0" json:"discrimination"`
	// Difficulty (b) — уровень способности, при котором вопрос "в самый раз".
	Difficulty float64 `gorm:"column:irt_b;not null;default:0.0" json:"difficulty"`
	// Guessing (c) — вероятность угадать правильный ответ. В диапазоне [0, 1).
	Guessing float64 `gorm:"column:irt_c;not null;default:0.0" json:"guessing"`
}

// Validate проверяет инварианты параметров 3PL модели
func (p IRTParams) Validate() error {
	if p.Discrimination <= 0 {
		return fmt.Errorf("discrimination must be positive, got %f", p.Discrimination)
	}
	if p.Guessing < 0 || p.Guessing >= 1 {
		return fmt.Errorf("guessing must be in [0, 1), got %f", p.Guessing)
	}
	return nil
}

// ProbabilityCorrect возвращает вероятность правильного ответа при способности theta
// по 3PL модели: P = c + (1-c) / (1 + exp(-a(theta-b)))
func (p IRTParams) ProbabilityCorrect(theta float64) float64 {
	logit := p.Discrimination * (theta - p.Difficulty)
	return p.Guessing + (1-p.Guessing)/(1+math.Exp(-logit))
}

// FisherInformation возвращает информацию Фишера вопроса при способности theta:
// I(theta) = a²(1-c) / ((c + exp(a(theta-b))) * (1 + exp(-a(theta-b)))²)
func (p IRTParams) FisherInformation(theta float64) float64 {
	logit := p.Discrimination * (theta - p.Difficulty)
	denom := (p.Guessing + math.Exp(logit)) * math.Pow(1+math.Exp(-logit), 2)
	if denom == 0 || math.IsInf(denom, 0) {
		return 0
	}
	info := p.Discrimination * p.Discrimination * (1 - p.Guessing) / denom
	if info < 0 || math.IsNaN(info) {
		return 0
	}
	return info
}

// QuestionItem представляет вопрос в пуле с его статистическими параметрами.
// Содержимое вопроса (текст, варианты) хранится внешней системой; здесь только
// ссылка ContentRef и ключ для проверки ответа.
type QuestionItem struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	QuestionType  string      `gorm:"size:30;not null;index" json:"question_type"`
	ObjectiveTags StringArray `gorm:"type:jsonb;not null" json:"objective_tags"`
	IRTParams     IRTParams   `gorm:"embedded" json:"irt_params"`
	// ParamsVersion увеличивается при каждом применении результатов калибровки
	ParamsVersion int    `gorm:"not null;default:1" json:"params_version"`
	ExposureCount int64  `gorm:"not null;default:0" json:"exposure_count"`
	ContentRef    string `gorm:"size:255;not null" json:"content_ref"`
	AnswerKey     string `gorm:"size:500;not null" json:"-"` // Скрыто от клиента
	PointValue    int    `gorm:"not null;default:1" json:"point_value"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (QuestionItem) TableName() string {
	return "question_items"
}

// Validate проверяет инварианты вопроса
func (q *QuestionItem) Validate() error {
	if !ValidQuestionTypes[q.QuestionType] {
		return fmt.Errorf("unknown question type: %q", q.QuestionType)
	}
	if len(q.ObjectiveTags) == 0 {
		return errors.New("question item must have at least one objective tag")
	}
	return q.IRTParams.Validate()
}

// numericalTolerance — допуск при сравнении числовых ответов
const numericalTolerance = 1e-6

// IsCorrect проверяет ответ учащегося по ключу.
// Для numerical — численное сравнение с допуском, для остальных типов —
// нормализованное строковое сравнение (регистр и крайние пробелы игнорируются).
func (q *QuestionItem) IsCorrect(rawResponse string) bool {
	if q.QuestionType == QuestionTypeNumerical {
		given, err1 := strconv.ParseFloat(strings.TrimSpace(rawResponse), 64)
		expected, err2 := strconv.ParseFloat(strings.TrimSpace(q.AnswerKey), 64)
		if err1 == nil && err2 == nil {
			return math.Abs(given-expected) <= numericalTolerance
		}
		// Если ключ или ответ не распарсился — сравниваем как строки
	}
	return normalizeAnswer(rawResponse) == normalizeAnswer(q.AnswerKey)
}

// CalculatePoints рассчитывает очки за ответ на вопрос
func (q *QuestionItem) CalculatePoints(isCorrect bool) int {
	if !isCorrect {
		return 0
	}
	if q.PointValue <= 0 {
		return 1
	}
	return q.PointValue
}

// HasAnyObjective проверяет, помечен ли вопрос хотя бы одной из целей
func (q *QuestionItem) HasAnyObjective(objectives []string) bool {
	for _, obj := range objectives {
		if q.ObjectiveTags.Contains(obj) {
			return true
		}
	}
	return false
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
