package catengine

import (
	"sync"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/domain/repository"
)

// Constants for default values
const (
	DefaultSEThreshold      = 0.3
	DefaultMinItems         = 5
	DefaultQuadraturePoints = 48
)

// Config содержит настройки всех компонентов адаптивного движка.
// Пороговые значения взяты из IRT-литературы и намеренно вынесены в
// конфигурацию, а не зашиты в код.
type Config struct {
	// Правило остановки
	SEThreshold float64 // Остановка при standard_error <= порога (вместе с MinItems)
	MinItems    int     // Минимум вопросов до срабатывания SE-критерия

	// Настройки оценщика способности
	QuadraturePoints   int     // Число узлов квадратурной сетки для EAP
	ThetaGridMin       float64 // Нижняя граница сетки
	ThetaGridMax       float64 // Верхняя граница сетки
	MLEMinResponses    int     // С какого числа ответов разрешён переход на MLE
	MaxNewtonIter      int     // Лимит итераций Ньютона-Рафсона
	NewtonTolerance    float64 // Критерий сходимости шага Ньютона
	ThetaBound         float64 // |theta| выше этой границы считается расходимостью MLE
	InitialStandardError float64 // SE до первого ответа (SD априорного распределения)

	// Настройки селектора вопросов
	ExposurePercentile float64 // Доля пула, выше которой показы считаются чрезмерными
	ExposurePenalty    float64 // Множитель информации для перэкспонированных вопросов

	// Настройки калибровщика
	CalibrationMaxIter      int     // Лимит итераций EM
	CalibrationTolerance    float64 // Сходимость: max изменение параметра между итерациями
	CalibrationMinResponses int     // Вопросы с меньшим числом ответов не переоцениваются

	// Порог прохождения (доля правильных) для summative/certification экзаменов
	PassingScore float64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		SEThreshold:          DefaultSEThreshold,
		MinItems:             DefaultMinItems,
		QuadraturePoints:     DefaultQuadraturePoints,
		ThetaGridMin:         -4.0,
		ThetaGridMax:         4.0,
		MLEMinResponses:      5,
		MaxNewtonIter:        20,
		NewtonTolerance:      1e-4,
		ThetaBound:           6.0,
		InitialStandardError: 1.0,
		ExposurePercentile:   0.90,
		ExposurePenalty:      0.5,
		CalibrationMaxIter:   100,
		// Жёстче 1e-3 EM не сходится: шум численных производных на М-шаге
		// оставляет изменения параметров этого порядка
		CalibrationTolerance: 1e-3,
		CalibrationMinResponses: 30,
		PassingScore:         0.6,
	}
}

// Dependencies содержит зависимости компонентов движка
type Dependencies struct {
	ItemRepo        repository.ItemRepository
	ExamRepo        repository.ExamRepository
	SessionRepo     repository.SessionRepository
	CalibrationRepo repository.CalibrationRepository
	CacheRepo       repository.CacheRepository
	Config          *Config
}

// ActiveSessionState хранит состояние живой сессии экзамена.
// Снимок параметров вопросов делается при старте сессии: последующая
// калибровка пула не меняет оценки внутри идущей сессии.
type ActiveSessionState struct {
	Session *entity.ExamSession

	// PoolItems — снимок пула экзамена на момент старта сессии
	PoolItems []entity.QuestionItem
	// ItemParams — снимок IRT-параметров по item ID (тот же момент времени)
	ItemParams map[uint]entity.IRTParams

	// PendingItemID — последний выданный и ещё не отвеченный вопрос (0 — нет)
	PendingItemID uint

	// Responses — накопленная история ответов в порядке выдачи
	Responses []entity.ExamResponse

	// LastEstimateMethod — метод последней оценки способности (для журнала переключений)
	LastEstimateMethod string

	// ObjectiveCounts — число выданных вопросов по каждой учебной цели
	ObjectiveCounts map[string]int

	// Ограничения экзамена, зафиксированные при старте сессии
	TotalQuestions  int
	MaxPerObjective int

	Mu sync.Mutex
}

// NewActiveSessionState создает состояние сессии со снимком пула и ограничений
func NewActiveSessionState(session *entity.ExamSession, exam *entity.AdaptiveExam, poolItems []entity.QuestionItem) *ActiveSessionState {
	params := make(map[uint]entity.IRTParams, len(poolItems))
	for _, item := range poolItems {
		params[item.ID] = item.IRTParams
	}
	return &ActiveSessionState{
		Session:         session,
		PoolItems:       poolItems,
		ItemParams:      params,
		ObjectiveCounts: make(map[string]int),
		TotalQuestions:  exam.Requirements.Constraints.TotalQuestions,
		MaxPerObjective: exam.Requirements.Constraints.MaxPerObjective,
	}
}

// RecordAdministered отмечает вопрос выданным и обновляет счётчики целей
func (s *ActiveSessionState) RecordAdministered(item *entity.QuestionItem) {
	s.Session.AdministeredItems = append(s.Session.AdministeredItems, item.ID)
	s.PendingItemID = item.ID
	for _, tag := range item.ObjectiveTags {
		s.ObjectiveCounts[tag]++
	}
}

// FindPoolItem возвращает вопрос из снимка пула по ID (nil, если не найден)
func (s *ActiveSessionState) FindPoolItem(itemID uint) *entity.QuestionItem {
	for i := range s.PoolItems {
		if s.PoolItems[i].ID == itemID {
			return &s.PoolItems[i]
		}
	}
	return nil
}
