package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
	"github.com/yourusername/examengine-api/internal/service/catengine"
)

// ============================================================================
// Моки репозиториев для SessionManager
// ============================================================================

// MockItemRepoForSessionManager реализует repository.ItemRepository
type MockItemRepoForSessionManager struct {
	mock.Mock
}

func (m *MockItemRepoForSessionManager) Create(item *entity.QuestionItem) error {
	args := m.Called(item)
	return args.Error(0)
}

func (m *MockItemRepoForSessionManager) CreateBatch(items []entity.QuestionItem) error {
	args := m.Called(items)
	return args.Error(0)
}

func (m *MockItemRepoForSessionManager) GetByID(id uint) (*entity.QuestionItem, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QuestionItem), args.Error(1)
}

func (m *MockItemRepoForSessionManager) GetByIDs(ids []uint) ([]entity.QuestionItem, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.QuestionItem), args.Error(1)
}

func (m *MockItemRepoForSessionManager) Update(item *entity.QuestionItem) error {
	args := m.Called(item)
	return args.Error(0)
}

func (m *MockItemRepoForSessionManager) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockItemRepoForSessionManager) GetByObjectives(objectives []string, difficultyMin, difficultyMax float64) ([]entity.QuestionItem, error) {
	args := m.Called(objectives, difficultyMin, difficultyMax)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.QuestionItem), args.Error(1)
}

func (m *MockItemRepoForSessionManager) IncrementExposure(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockItemRepoForSessionManager) ApplyCalibration(estimates []entity.ItemEstimate) (int, error) {
	args := m.Called(estimates)
	return args.Int(0), args.Error(1)
}

func (m *MockItemRepoForSessionManager) CountByDifficultyBand(min, max float64) (int64, error) {
	args := m.Called(min, max)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockItemRepoForSessionManager) GetPoolStats() (int64, map[string]int64, error) {
	args := m.Called()
	if args.Get(1) == nil {
		return args.Get(0).(int64), nil, args.Error(2)
	}
	return args.Get(0).(int64), args.Get(1).(map[string]int64), args.Error(2)
}

// MockExamRepoForSessionManager реализует repository.ExamRepository
type MockExamRepoForSessionManager struct {
	mock.Mock
}

func (m *MockExamRepoForSessionManager) Create(exam *entity.AdaptiveExam) error {
	args := m.Called(exam)
	return args.Error(0)
}

func (m *MockExamRepoForSessionManager) GetByID(id string) (*entity.AdaptiveExam, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AdaptiveExam), args.Error(1)
}

func (m *MockExamRepoForSessionManager) List(limit, offset int) ([]entity.AdaptiveExam, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AdaptiveExam), args.Error(1)
}

func (m *MockExamRepoForSessionManager) Delete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockSessionRepoForSessionManager реализует repository.SessionRepository
type MockSessionRepoForSessionManager struct {
	mock.Mock
}

func (m *MockSessionRepoForSessionManager) Create(session *entity.ExamSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionRepoForSessionManager) GetByID(id string) (*entity.ExamSession, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExamSession), args.Error(1)
}

func (m *MockSessionRepoForSessionManager) GetWithResponses(id string) (*entity.ExamSession, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExamSession), args.Error(1)
}

func (m *MockSessionRepoForSessionManager) Update(session *entity.ExamSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionRepoForSessionManager) SaveResponse(response *entity.ExamResponse) error {
	args := m.Called(response)
	return args.Error(0)
}

func (m *MockSessionRepoForSessionManager) GetResponses(sessionID string) ([]entity.ExamResponse, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExamResponse), args.Error(1)
}

func (m *MockSessionRepoForSessionManager) GetResponseLog(limit int) ([]entity.ResponseObservation, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ResponseObservation), args.Error(1)
}

func (m *MockSessionRepoForSessionManager) SaveResults(results *entity.ExamResults) error {
	args := m.Called(results)
	return args.Error(0)
}

func (m *MockSessionRepoForSessionManager) GetResultsBySessionID(sessionID string) (*entity.ExamResults, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExamResults), args.Error(1)
}

// ============================================================================
// Тестовое окружение
// ============================================================================

type sessionTestEnv struct {
	manager     *SessionManager
	itemRepo    *MockItemRepoForSessionManager
	examRepo    *MockExamRepoForSessionManager
	sessionRepo *MockSessionRepoForSessionManager
	exam        *entity.AdaptiveExam
	pool        []entity.QuestionItem
}

// newSessionTestEnv собирает менеджер с экзаменом на 10 вопросов:
// b равномерно в [-2, 2], правильный ответ везде "A".
// SE-порог занижен, чтобы сессия гарантированно дошла до лимита вопросов.
func newSessionTestEnv(t *testing.T) *sessionTestEnv {
	t.Helper()

	pool := make([]entity.QuestionItem, 10)
	poolIDs := make(entity.UintArray, 10)
	for i := 0; i < 10; i++ {
		pool[i] = entity.QuestionItem{
			ID:            uint(i + 1),
			QuestionType:  entity.QuestionTypeMultipleChoice,
			ObjectiveTags: entity.StringArray{"obj"},
			IRTParams:     entity.IRTParams{Discrimination: 1.0, Difficulty: -2.0 + 4.0*float64(i)/9.0},
			AnswerKey:     "A",
			PointValue:    1,
		}
		poolIDs[i] = uint(i + 1)
	}

	exam := &entity.AdaptiveExam{
		ID:          "exam-1",
		ItemPoolIDs: poolIDs,
		Requirements: entity.ExamRequirements{
			LearningObjectives: []entity.ObjectiveTarget{{ObjectiveID: "obj", TargetCount: 10}},
			Constraints:        entity.ExamConstraints{TotalQuestions: 10},
			Purpose:            entity.ExamPurposeSummative,
		},
	}

	itemRepo := new(MockItemRepoForSessionManager)
	examRepo := new(MockExamRepoForSessionManager)
	sessionRepo := new(MockSessionRepoForSessionManager)

	examRepo.On("GetByID", "exam-1").Return(exam, nil)
	itemRepo.On("GetByIDs", mock.Anything).Return(pool, nil)
	itemRepo.On("IncrementExposure", mock.Anything).Return(nil)
	sessionRepo.On("Create", mock.Anything).Return(nil)
	sessionRepo.On("Update", mock.Anything).Return(nil)
	sessionRepo.On("SaveResponse", mock.Anything).Return(nil)

	config := catengine.DefaultConfig()
	config.SEThreshold = 0.05 // На 10 вопросах недостижим — остановка по лимиту

	deps := &catengine.Dependencies{
		ItemRepo:    itemRepo,
		ExamRepo:    examRepo,
		SessionRepo: sessionRepo,
		Config:      config,
	}

	return &sessionTestEnv{
		manager:     NewSessionManager(config, deps, NewResultService(config)),
		itemRepo:    itemRepo,
		examRepo:    examRepo,
		sessionRepo: sessionRepo,
		exam:        exam,
		pool:        pool,
	}
}

// ============================================================================
// Тесты для SessionManager
// ============================================================================

// TestStartSession_OK — новая сессия в статусе created
func TestStartSession_OK(t *testing.T) {
	env := newSessionTestEnv(t)

	session, err := env.manager.StartSession("exam-1", "learner-1", nil)

	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCreated, session.Status)
	assert.Equal(t, 0.0, session.AbilityEstimate)
	assert.Equal(t, 1.0, session.StandardError)
	assert.Empty(t, session.AdministeredItems)
}

// TestStartSession_InitialAbility — стартовая оценка из placement-теста
func TestStartSession_InitialAbility(t *testing.T) {
	env := newSessionTestEnv(t)

	theta := 1.5
	session, err := env.manager.StartSession("exam-1", "learner-1", &theta)

	require.NoError(t, err)
	assert.Equal(t, 1.5, session.AbilityEstimate)
}

// TestStartSession_ExamNotFound — несуществующий экзамен
func TestStartSession_ExamNotFound(t *testing.T) {
	env := newSessionTestEnv(t)
	env.examRepo.On("GetByID", "missing").Return(nil, apperrors.ErrNotFound)

	_, err := env.manager.StartSession("missing", "learner-1", nil)

	assert.ErrorIs(t, err, ErrExamNotFound)
}

// TestGetNextQuestion_MovesToInProgress — первый вопрос переводит сессию
// в in_progress, повторный запрос без ответа возвращает тот же вопрос
func TestGetNextQuestion_MovesToInProgress(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	first, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	current, err := env.manager.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusInProgress, current.Status)

	// Идемпотентный повторный запрос: тот же вопрос, история не растёт
	again, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	current, _ = env.manager.GetSession(session.ID)
	assert.Len(t, current.AdministeredItems, 1)
}

// TestSubmitResponse_Protocol — протокольные нарушения не меняют сессию
func TestSubmitResponse_Protocol(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	// Ответ до выдачи вопроса
	_, err = env.manager.SubmitResponse(session.ID, 1, "A", 1000, nil)
	assert.ErrorIs(t, err, ErrNoQuestionIssued)

	item, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)

	// Ответ не на последний выданный вопрос
	wrongID := item.ID + 1
	if wrongID > 10 {
		wrongID = 1
	}
	_, err = env.manager.SubmitResponse(session.ID, wrongID, "A", 1000, nil)
	assert.ErrorIs(t, err, ErrItemNotAdministered)

	// Корректный ответ после нарушений проходит
	scored, err := env.manager.SubmitResponse(session.ID, item.ID, "A", 1000, nil)
	require.NoError(t, err)
	assert.True(t, scored.IsCorrect)
}

// TestSessionWalkthrough — полный проход экзамена: 10 вопросов,
// половина правильных. Сессия завершается по лимиту вопросов,
// итоговая оценка способности около нуля.
func TestSessionWalkthrough(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	var lastScored *ScoredResponse
	for i := 0; i < 10; i++ {
		item, err := env.manager.GetNextQuestion(session.ID)
		require.NoError(t, err, "вопрос %d", i+1)
		require.NotNil(t, item)

		answer := "A"
		if i%2 == 1 {
			answer = "B"
		}
		lastScored, err = env.manager.SubmitResponse(session.ID, item.ID, answer, 1500, nil)
		require.NoError(t, err, "ответ %d", i+1)
	}

	require.NotNil(t, lastScored)
	assert.Equal(t, entity.SessionStatusCompleted, lastScored.SessionStatus,
		"после 10 ответов сессия должна завершиться по лимиту")
	assert.InDelta(t, 0.0, lastScored.AbilityEstimate, 0.75,
		"половина правильных на симметричном пуле → theta около 0")

	// Дальнейшие запросы отвергаются
	_, err = env.manager.GetNextQuestion(session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminated)
}

// TestSessionWalkthrough_NoRepeats — в пределах сессии вопрос не выдаётся дважды
func TestSessionWalkthrough_NoRepeats(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	seen := map[uint]bool{}
	for i := 0; i < 10; i++ {
		item, err := env.manager.GetNextQuestion(session.ID)
		require.NoError(t, err)
		assert.False(t, seen[item.ID], "вопрос %d выдан повторно", item.ID)
		seen[item.ID] = true

		_, err = env.manager.SubmitResponse(session.ID, item.ID, "A", 500, nil)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 10)
}

// TestCompleteExam_CompilesResults — итоговый отчёт после полного прохода
func TestCompleteExam_CompilesResults(t *testing.T) {
	env := newSessionTestEnv(t)
	env.sessionRepo.On("GetResultsBySessionID", mock.Anything).Return(nil, apperrors.ErrNotFound)
	env.sessionRepo.On("SaveResults", mock.Anything).Return(nil)

	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		item, err := env.manager.GetNextQuestion(session.ID)
		require.NoError(t, err)
		answer := "A"
		if i >= 5 {
			answer = "B"
		}
		_, err = env.manager.SubmitResponse(session.ID, item.ID, answer, 1000, nil)
		require.NoError(t, err)
	}

	results, err := env.manager.CompleteExam(session.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, results.TotalQuestions)
	assert.Equal(t, 5, results.CorrectAnswers)
	assert.Equal(t, 5, results.TotalScore)
	assert.Equal(t, 10, results.MaxScore)

	// summative экзамен: 5/10 < 0.6 → не сдан
	require.NotNil(t, results.Passed)
	assert.False(t, *results.Passed)

	mastery := results.ObjectiveMastery["obj"]
	assert.Equal(t, 10, mastery.Attempted)
	assert.Equal(t, 5, mastery.Correct)
	assert.InDelta(t, 0.5, mastery.MasteryEstimate, 0.01)
}

// TestCompleteExam_Idempotent — повторное завершение возвращает сохранённый
// отчёт, а не пересчитывает его
func TestCompleteExam_Idempotent(t *testing.T) {
	env := newSessionTestEnv(t)
	saved := &entity.ExamResults{SessionID: "s-1", TotalQuestions: 7}
	env.sessionRepo.On("GetResultsBySessionID", "s-1").Return(saved, nil)

	results, err := env.manager.CompleteExam("s-1")

	require.NoError(t, err)
	assert.Equal(t, saved, results, "должен вернуться кешированный отчёт без пересчёта")
	env.sessionRepo.AssertNotCalled(t, "SaveResults", mock.Anything)
}

// TestAbandonSession — брошенная сессия терминальна
func TestAbandonSession(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.AbandonSession(session.ID))

	// Сессия выгружена из памяти — менеджер восстановит её из БД
	abandoned := *session
	abandoned.Status = entity.SessionStatusAbandoned
	env.sessionRepo.On("GetWithResponses", session.ID).Return(&abandoned, nil)

	_, err = env.manager.GetNextQuestion(session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminated)
}

// TestCompleteExam_AbandonedStaysAbandoned — брошенную сессию нельзя
// дозавершить: complete отвергается, отчёт не собирается
func TestCompleteExam_AbandonedStaysAbandoned(t *testing.T) {
	env := newSessionTestEnv(t)
	env.sessionRepo.On("GetResultsBySessionID", mock.Anything).Return(nil, apperrors.ErrNotFound)

	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	item, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)
	_, err = env.manager.SubmitResponse(session.ID, item.ID, "A", 800, nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.AbandonSession(session.ID))

	// Abandon выгружает состояние — complete восстановит сессию из БД
	abandoned := *session
	abandoned.Status = entity.SessionStatusAbandoned
	abandoned.Responses = []entity.ExamResponse{
		{SessionID: session.ID, ItemID: item.ID, IsCorrect: true, ResponseTimeMs: 800},
	}
	env.sessionRepo.On("GetWithResponses", session.ID).Return(&abandoned, nil)

	_, err = env.manager.CompleteExam(session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminated)

	// Статус не перезаписан, отчёт не сохранялся
	current, err := env.manager.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusAbandoned, current.Status)
	env.sessionRepo.AssertNotCalled(t, "SaveResults", mock.Anything)
}

// TestCompleteExam_RecordsQualityMetrics — среднее время ответа и
// согласованность фиксируются и в отчёте, и на самой сессии
func TestCompleteExam_RecordsQualityMetrics(t *testing.T) {
	env := newSessionTestEnv(t)
	env.sessionRepo.On("GetResultsBySessionID", mock.Anything).Return(nil, apperrors.ErrNotFound)
	env.sessionRepo.On("SaveResults", mock.Anything).Return(nil)

	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		item, err := env.manager.GetNextQuestion(session.ID)
		require.NoError(t, err)
		_, err = env.manager.SubmitResponse(session.ID, item.ID, "A", 1200, nil)
		require.NoError(t, err)
	}

	results, err := env.manager.CompleteExam(session.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1200), results.AvgResponseTimeMs)
	assert.Greater(t, results.ConsistencyScore, 0.0)

	// StartSession возвращает живой объект сессии — показатели должны
	// оказаться и на нём
	assert.Equal(t, int64(1200), session.AvgResponseTimeMs)
	assert.Equal(t, results.ConsistencyScore, session.ConsistencyScore)
}

// TestGetSession_DetachedCopy — мутации возвращённой копии
// не задевают живое состояние сессии
func TestGetSession_DetachedCopy(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	item, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)
	_, err = env.manager.SubmitResponse(session.ID, item.ID, "A", 600, nil)
	require.NoError(t, err)

	copied, err := env.manager.GetSession(session.ID)
	require.NoError(t, err)
	require.Len(t, copied.AdministeredItems, 1)
	require.NotEmpty(t, copied.AdaptiveAdjustments)

	copied.AdministeredItems[0] = 999
	copied.AdaptiveAdjustments[0].NewValue = -42.0

	fresh, err := env.manager.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, fresh.AdministeredItems[0])
	assert.NotEqual(t, -42.0, fresh.AdaptiveAdjustments[0].NewValue)
}

// TestGetSessionResponses — журнал ответов читается из БД для живой сессии
func TestGetSessionResponses(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	stored := []entity.ExamResponse{
		{SessionID: session.ID, ItemID: 4, IsCorrect: true, ResponseTimeMs: 700},
	}
	env.sessionRepo.On("GetResponses", session.ID).Return(stored, nil)

	responses, err := env.manager.GetSessionResponses(session.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, responses)
}

// TestGetNextQuestion_SessionNotFound — неизвестная сессия
func TestGetNextQuestion_SessionNotFound(t *testing.T) {
	env := newSessionTestEnv(t)
	env.sessionRepo.On("GetWithResponses", "ghost").Return(nil, apperrors.ErrNotFound)

	_, err := env.manager.GetNextQuestion("ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestRehydrate_RestoresPendingItem — после рестарта процесса сессия
// восстанавливается из БД вместе с неотвеченным вопросом
func TestRehydrate_RestoresPendingItem(t *testing.T) {
	env := newSessionTestEnv(t)

	stored := &entity.ExamSession{
		ID:                "restored",
		ExamID:            "exam-1",
		LearnerID:         "learner-1",
		Status:            entity.SessionStatusInProgress,
		AbilityEstimate:   0.4,
		StandardError:     0.8,
		AdministeredItems: entity.UintArray{3, 7}, // на 7-й ещё нет ответа
		StartedAt:         time.Now(),
		Responses: []entity.ExamResponse{
			{SessionID: "restored", ItemID: 3, IsCorrect: true},
		},
	}
	env.sessionRepo.On("GetWithResponses", "restored").Return(stored, nil)

	// Повторный запрос вопроса должен вернуть неотвеченный вопрос 7
	item, err := env.manager.GetNextQuestion("restored")
	require.NoError(t, err)
	assert.Equal(t, uint(7), item.ID)

	// И ответ на него принимается
	scored, err := env.manager.SubmitResponse("restored", 7, "A", 900, nil)
	require.NoError(t, err)
	assert.True(t, scored.IsCorrect)
}

// TestSubmitResponse_LogsAdjustments — каждый ответ оставляет запись
// ability_update в журнале корректировок
func TestSubmitResponse_LogsAdjustments(t *testing.T) {
	env := newSessionTestEnv(t)
	session, err := env.manager.StartSession("exam-1", "learner-1", nil)
	require.NoError(t, err)

	item, err := env.manager.GetNextQuestion(session.ID)
	require.NoError(t, err)
	scored, err := env.manager.SubmitResponse(session.ID, item.ID, "A", 700, nil)
	require.NoError(t, err)

	require.NotEmpty(t, scored.AdaptiveAdjustments)
	adj := scored.AdaptiveAdjustments[0]
	assert.Equal(t, entity.AdjustmentAbilityUpdate, adj.Type)
	assert.Equal(t, 1, adj.QuestionNumber)
	assert.Equal(t, 0.0, adj.OldValue)
	assert.Equal(t, scored.AbilityEstimate, adj.NewValue)
	assert.NotZero(t, adj.Timestamp)
}
