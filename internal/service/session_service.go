package service

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
	"github.com/yourusername/examengine-api/internal/service/catengine"
)

// ScoredResponse — результат обработки ответа учащегося
type ScoredResponse struct {
	IsCorrect           bool                        `json:"is_correct"`
	PointsEarned        int                         `json:"points_earned"`
	AbilityEstimate     float64                     `json:"ability_estimate"`
	StandardError       float64                     `json:"standard_error"`
	SessionStatus       string                      `json:"session_status"`
	AdaptiveAdjustments []entity.AdaptiveAdjustment `json:"adaptive_adjustments"`
}

// SessionManager владеет жизненным циклом сессий экзаменов: created →
// in_progress → {completed, abandoned}. Вся последовательность
// "ответ → обновление оценки → правило остановки" выполняется атомарно
// под мьютексом сессии; сессии разных учащихся полностью независимы.
type SessionManager struct {
	config    *catengine.Config
	deps      *catengine.Dependencies
	estimator *catengine.AbilityEstimator
	selector  *catengine.ItemSelector

	resultService *ResultService

	// Живые сессии в памяти; упавший процесс восстанавливает их из БД лениво
	sessions   map[string]*catengine.ActiveSessionState
	stateMutex sync.RWMutex
}

// NewSessionManager создает новый менеджер сессий
func NewSessionManager(config *catengine.Config, deps *catengine.Dependencies, resultService *ResultService) *SessionManager {
	return &SessionManager{
		config:        config,
		deps:          deps,
		estimator:     catengine.NewAbilityEstimator(config),
		selector:      catengine.NewItemSelector(config, deps),
		resultService: resultService,
		sessions:      make(map[string]*catengine.ActiveSessionState),
	}
}

// StartSession открывает новую сессию экзамена для учащегося.
// initialAbility позволяет стартовать не с нуля (например, из placement-теста).
func (m *SessionManager) StartSession(examID, learnerID string, initialAbility *float64) (*entity.ExamSession, error) {
	exam, err := m.deps.ExamRepo.GetByID(examID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to load exam %s: %w", examID, err)
	}

	poolItems, err := m.deps.ItemRepo.GetByIDs(exam.ItemPoolIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load item pool for exam %s: %w", examID, err)
	}

	theta := 0.0
	if initialAbility != nil {
		theta = *initialAbility
	}

	session := &entity.ExamSession{
		ID:                  uuid.NewString(),
		ExamID:              examID,
		LearnerID:           learnerID,
		Status:              entity.SessionStatusCreated,
		AbilityEstimate:     theta,
		StandardError:       m.config.InitialStandardError,
		AdministeredItems:   entity.UintArray{},
		AdaptiveAdjustments: entity.AdjustmentLog{},
		StartedAt:           time.Now(),
	}

	if err := m.deps.SessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	state := catengine.NewActiveSessionState(session, exam, poolItems)
	m.stateMutex.Lock()
	m.sessions[session.ID] = state
	m.stateMutex.Unlock()

	log.Printf("[SessionManager] Открыта сессия %s: экзамен %s, учащийся %s, пул из %d вопросов, theta_0=%.2f",
		session.ID, examID, learnerID, len(poolItems), theta)

	return session, nil
}

// GetNextQuestion выбирает следующий вопрос для сессии.
// Первый вызов переводит сессию в in_progress. Если селектор не нашёл
// подходящего вопроса, сессия завершается и возвращается ErrPoolExhausted —
// вызывающему следует запросить итоговые результаты.
func (m *SessionManager) GetNextQuestion(sessionID string) (*entity.QuestionItem, error) {
	state, err := m.getState(sessionID)
	if err != nil {
		return nil, err
	}

	state.Mu.Lock()
	defer state.Mu.Unlock()

	if state.Session.IsTerminated() {
		return nil, ErrSessionTerminated
	}

	// Повторный запрос без ответа возвращает тот же вопрос
	if state.PendingItemID != 0 {
		if item := state.FindPoolItem(state.PendingItemID); item != nil {
			return item, nil
		}
	}

	if state.Session.Status == entity.SessionStatusCreated {
		state.Session.Status = entity.SessionStatusInProgress
	}

	item := m.selector.SelectNext(state, state.Session.AbilityEstimate)
	if item == nil {
		// Пул исчерпан — штатное досрочное завершение
		m.terminate(state, entity.SessionStatusCompleted)
		state.Session.AdaptiveAdjustments = append(state.Session.AdaptiveAdjustments, entity.AdaptiveAdjustment{
			QuestionNumber: len(state.Session.AdministeredItems),
			Type:           entity.AdjustmentPoolExhausted,
			OldValue:       state.Session.AbilityEstimate,
			NewValue:       state.Session.AbilityEstimate,
			Reason:         "no eligible items remain",
			Timestamp:      nowMs(),
		})
		m.persist(state)
		return nil, ErrPoolExhausted
	}

	state.RecordAdministered(item)
	m.recordExposure(item.ID)
	m.persist(state)

	return item, nil
}

// SubmitResponse обрабатывает ответ учащегося: проверяет протокол
// (ответ только на последний выданный вопрос), оценивает ответ по ключу,
// обновляет оценку способности и применяет правило остановки.
func (m *SessionManager) SubmitResponse(sessionID string, itemID uint, rawResponse string, responseTimeMs int64, confidence *int) (*ScoredResponse, error) {
	state, err := m.getState(sessionID)
	if err != nil {
		return nil, err
	}

	state.Mu.Lock()
	defer state.Mu.Unlock()

	if state.Session.IsTerminated() {
		return nil, ErrSessionTerminated
	}
	if state.PendingItemID == 0 {
		return nil, ErrNoQuestionIssued
	}
	if itemID != state.PendingItemID {
		// Внеочередная или повторная отправка: сессию не меняем
		return nil, ErrItemNotAdministered
	}

	item := state.FindPoolItem(itemID)
	if item == nil {
		return nil, fmt.Errorf("internal error: pending item %d missing from pool snapshot", itemID)
	}

	// Оценка ответа по ключу вопроса
	isCorrect := item.IsCorrect(rawResponse)
	points := item.CalculatePoints(isCorrect)
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}

	response := entity.ExamResponse{
		SessionID:       sessionID,
		ItemID:          itemID,
		RawResponse:     rawResponse,
		IsCorrect:       isCorrect,
		ResponseTimeMs:  responseTimeMs,
		ConfidenceLevel: confidence,
		PointsEarned:    points,
		AnsweredAt:      time.Now(),
	}
	if err := m.deps.SessionRepo.SaveResponse(&response); err != nil {
		return nil, fmt.Errorf("failed to persist response: %w", err)
	}
	state.Responses = append(state.Responses, response)
	state.PendingItemID = 0

	// Обновление оценки способности по всей истории
	questionNumber := len(state.Session.AdministeredItems)
	oldTheta := state.Session.AbilityEstimate
	estimate := m.estimator.Estimate(state.Responses, state.ItemParams)

	var adjustments []entity.AdaptiveAdjustment
	adjustments = append(adjustments, entity.AdaptiveAdjustment{
		QuestionNumber: questionNumber,
		Type:           entity.AdjustmentAbilityUpdate,
		OldValue:       oldTheta,
		NewValue:       estimate.Theta,
		Reason:         estimate.Method,
		Timestamp:      nowMs(),
	})
	if state.LastEstimateMethod != "" && state.LastEstimateMethod != estimate.Method {
		adjustments = append(adjustments, entity.AdaptiveAdjustment{
			QuestionNumber: questionNumber,
			Type:           entity.AdjustmentMethodSwitch,
			OldValue:       oldTheta,
			NewValue:       estimate.Theta,
			Reason:         fmt.Sprintf("%s -> %s", state.LastEstimateMethod, estimate.Method),
			Timestamp:      nowMs(),
		})
	}
	state.LastEstimateMethod = estimate.Method

	state.Session.AbilityEstimate = estimate.Theta
	state.Session.StandardError = estimate.SE

	// Правило остановки: (SE <= порога И задано минимум вопросов) ИЛИ жёсткий лимит
	if stop, reason := m.shouldStop(state); stop {
		m.terminate(state, entity.SessionStatusCompleted)
		adjustments = append(adjustments, entity.AdaptiveAdjustment{
			QuestionNumber: questionNumber,
			Type:           entity.AdjustmentEarlyStop,
			OldValue:       oldTheta,
			NewValue:       estimate.Theta,
			Reason:         reason,
			Timestamp:      nowMs(),
		})
		log.Printf("[SessionManager] Сессия %s завершена после %d вопросов: %s (theta=%.3f, SE=%.3f)",
			sessionID, questionNumber, reason, estimate.Theta, estimate.SE)
	}

	state.Session.AdaptiveAdjustments = append(state.Session.AdaptiveAdjustments, adjustments...)
	m.persist(state)

	return &ScoredResponse{
		IsCorrect:           isCorrect,
		PointsEarned:        points,
		AbilityEstimate:     estimate.Theta,
		StandardError:       estimate.SE,
		SessionStatus:       state.Session.Status,
		AdaptiveAdjustments: adjustments,
	}, nil
}

// CompleteExam завершает сессию и собирает итоговый отчёт.
// Идемпотентна: повторный вызов возвращает уже сохранённый отчёт,
// а не пересчитывает его.
func (m *SessionManager) CompleteExam(sessionID string) (*entity.ExamResults, error) {
	// Сначала проверяем кеш результатов — сессия могла быть уже закрыта
	if results, err := m.deps.SessionRepo.GetResultsBySessionID(sessionID); err == nil {
		return results, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up results for session %s: %w", sessionID, err)
	}

	state, err := m.getState(sessionID)
	if err != nil {
		return nil, err
	}

	state.Mu.Lock()
	defer state.Mu.Unlock()

	// abandoned — терминальный статус: брошенную сессию нельзя дозавершить
	if state.Session.Status == entity.SessionStatusAbandoned {
		return nil, ErrSessionTerminated
	}

	if state.Session.Status != entity.SessionStatusCompleted {
		m.terminate(state, entity.SessionStatusCompleted)
		m.persist(state)
	}

	exam, err := m.deps.ExamRepo.GetByID(state.Session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam for results: %w", err)
	}

	results := m.resultService.CompileResults(state.Session, state.Responses, state.PoolItems, exam.Requirements.Purpose)
	if err := m.deps.SessionRepo.SaveResults(results); err != nil {
		return nil, fmt.Errorf("failed to persist results: %w", err)
	}

	// Показатели качества прохождения фиксируются и на самой сессии
	state.Session.ConsistencyScore = results.ConsistencyScore
	state.Session.AvgResponseTimeMs = results.AvgResponseTimeMs
	m.persist(state)

	// Сессия терминальна — выгружаем состояние из памяти
	m.stateMutex.Lock()
	delete(m.sessions, sessionID)
	m.stateMutex.Unlock()

	return results, nil
}

// AbandonSession переводит сессию в терминальный статус abandoned.
// Дальнейшие записи в сессию не принимаются.
func (m *SessionManager) AbandonSession(sessionID string) error {
	state, err := m.getState(sessionID)
	if err != nil {
		return err
	}

	state.Mu.Lock()
	defer state.Mu.Unlock()

	if state.Session.IsTerminated() {
		return ErrSessionTerminated
	}

	m.terminate(state, entity.SessionStatusAbandoned)
	m.persist(state)

	m.stateMutex.Lock()
	delete(m.sessions, sessionID)
	m.stateMutex.Unlock()

	log.Printf("[SessionManager] Сессия %s брошена после %d вопросов", sessionID, len(state.Session.AdministeredItems))
	return nil
}

// GetSession возвращает отвязанную копию текущего состояния сессии:
// слайсы копируются, мутации у вызывающего не задевают живую сессию
func (m *SessionManager) GetSession(sessionID string) (*entity.ExamSession, error) {
	state, err := m.getState(sessionID)
	if err != nil {
		return nil, err
	}
	state.Mu.Lock()
	defer state.Mu.Unlock()
	copied := *state.Session
	copied.AdministeredItems = append(entity.UintArray(nil), state.Session.AdministeredItems...)
	copied.AdaptiveAdjustments = append(entity.AdjustmentLog(nil), state.Session.AdaptiveAdjustments...)
	copied.Responses = nil
	return &copied, nil
}

// GetSessionResponses возвращает журнал ответов сессии в порядке выдачи
func (m *SessionManager) GetSessionResponses(sessionID string) ([]entity.ExamResponse, error) {
	if _, err := m.getState(sessionID); err != nil {
		return nil, err
	}
	responses, err := m.deps.SessionRepo.GetResponses(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses for session %s: %w", sessionID, err)
	}
	return responses, nil
}

// shouldStop применяет правило остановки после очередного ответа
func (m *SessionManager) shouldStop(state *catengine.ActiveSessionState) (bool, string) {
	administered := len(state.Session.AdministeredItems)
	if administered >= state.TotalQuestions {
		return true, "question limit reached"
	}
	if administered >= m.config.MinItems && state.Session.StandardError <= m.config.SEThreshold {
		return true, fmt.Sprintf("standard error %.3f below threshold %.2f", state.Session.StandardError, m.config.SEThreshold)
	}
	return false, ""
}

// terminate переводит сессию в терминальный статус и ставит отметку времени
func (m *SessionManager) terminate(state *catengine.ActiveSessionState, status string) {
	state.Session.Status = status
	now := time.Now()
	state.Session.CompletedAt = &now
	state.PendingItemID = 0
}

// persist сохраняет сессию; отказ БД логируется, но не роняет ход экзамена —
// состояние в памяти остаётся источником истины до следующей записи
func (m *SessionManager) persist(state *catengine.ActiveSessionState) {
	if err := m.deps.SessionRepo.Update(state.Session); err != nil {
		log.Printf("[SessionManager] WARNING: не удалось сохранить сессию %s: %v", state.Session.ID, err)
	}
}

// recordExposure инкрементирует счётчики показов вопроса (Redis + БД).
// Счётчики eventually-consistent: ошибки логируются и не прерывают выдачу.
func (m *SessionManager) recordExposure(itemID uint) {
	if m.deps.CacheRepo != nil {
		if _, err := m.deps.CacheRepo.Increment(catengine.ExposureKey(itemID)); err != nil {
			log.Printf("[SessionManager] Ошибка инкремента показов в Redis для вопроса #%d: %v", itemID, err)
		}
	}
	if err := m.deps.ItemRepo.IncrementExposure(itemID); err != nil {
		log.Printf("[SessionManager] Ошибка инкремента показов в БД для вопроса #%d: %v", itemID, err)
	}
}

// getState возвращает живое состояние сессии, при необходимости
// восстанавливая его из БД (например, после рестарта процесса)
func (m *SessionManager) getState(sessionID string) (*catengine.ActiveSessionState, error) {
	m.stateMutex.RLock()
	state, found := m.sessions[sessionID]
	m.stateMutex.RUnlock()
	if found {
		return state, nil
	}
	return m.rehydrate(sessionID)
}

// rehydrate восстанавливает состояние сессии из БД одним чтением с ответами
func (m *SessionManager) rehydrate(sessionID string) (*catengine.ActiveSessionState, error) {
	session, err := m.deps.SessionRepo.GetWithResponses(sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	// Ответы живут в state, а не на сущности: Update сессии не должен
	// трогать ассоциации
	responses := session.Responses
	session.Responses = nil

	exam, err := m.deps.ExamRepo.GetByID(session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam %s: %w", session.ExamID, err)
	}
	poolItems, err := m.deps.ItemRepo.GetByIDs(exam.ItemPoolIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load item pool: %w", err)
	}

	state := catengine.NewActiveSessionState(session, exam, poolItems)
	state.Responses = responses

	// Восстанавливаем счётчики целей и неотвеченный вопрос
	for _, itemID := range session.AdministeredItems {
		if item := state.FindPoolItem(itemID); item != nil {
			for _, tag := range item.ObjectiveTags {
				state.ObjectiveCounts[tag]++
			}
		}
	}
	if len(session.AdministeredItems) > len(responses) {
		state.PendingItemID = session.LastAdministeredItem()
	}

	m.stateMutex.Lock()
	m.sessions[sessionID] = state
	m.stateMutex.Unlock()

	log.Printf("[SessionManager] Сессия %s восстановлена из БД (%d ответов)", sessionID, len(responses))
	return state, nil
}

// nowMs возвращает текущее время в Unix миллисекундах
func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
