package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// ============================================================================
// Моки для ExamService
// ============================================================================

// MockItemRepoForExamService реализует repository.ItemRepository (минимально:
// генератору нужен только GetByObjectives)
type MockItemRepoForExamService struct {
	MockItemRepoForSessionManager
}

// MockExamRepoForExamService реализует repository.ExamRepository
type MockExamRepoForExamService struct {
	MockExamRepoForSessionManager
}

// ============================================================================
// Вспомогательные конструкторы
// ============================================================================

func itemsForObjective(objective string, startID uint, difficulties ...float64) []entity.QuestionItem {
	items := make([]entity.QuestionItem, len(difficulties))
	for i, b := range difficulties {
		items[i] = entity.QuestionItem{
			ID:            startID + uint(i),
			QuestionType:  entity.QuestionTypeMultipleChoice,
			ObjectiveTags: entity.StringArray{objective},
			IRTParams:     entity.IRTParams{Discrimination: 1.0, Difficulty: b},
		}
	}
	return items
}

func typedItems(objective, questionType string, startID uint, difficulties ...float64) []entity.QuestionItem {
	items := itemsForObjective(objective, startID, difficulties...)
	for i := range items {
		items[i].QuestionType = questionType
	}
	return items
}

func generationRequest(totalQuestions int, targets ...entity.ObjectiveTarget) entity.ExamRequirements {
	return entity.ExamRequirements{
		LearningObjectives: targets,
		Constraints: entity.ExamConstraints{
			TotalQuestions: totalQuestions,
			DifficultyMin:  -2,
			DifficultyMax:  2,
		},
		Purpose: entity.ExamPurposeFormative,
	}
}

// ============================================================================
// Тесты для ExamService.GenerateExam
// ============================================================================

// TestGenerateExam_OK — экзамен собирается и сохраняется, пул покрывает цели
func TestGenerateExam_OK(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	itemRepo.On("GetByObjectives", []string{"algebra"}, -2.0, 2.0).
		Return(itemsForObjective("algebra", 1, -1.5, -0.5, 0.5, 1.5), nil)
	itemRepo.On("GetByObjectives", []string{"geometry"}, -2.0, 2.0).
		Return(itemsForObjective("geometry", 10, -1, 0, 1), nil)
	examRepo.On("Create", mock.Anything).Return(nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(6,
		entity.ObjectiveTarget{ObjectiveID: "algebra", TargetCount: 4},
		entity.ObjectiveTarget{ObjectiveID: "geometry", TargetCount: 2},
	)

	exam, err := service.GenerateExam(context.Background(), req)

	require.NoError(t, err)
	assert.NotEmpty(t, exam.ID)
	assert.Len(t, exam.ItemPoolIDs, 6)
	examRepo.AssertCalled(t, "Create", mock.Anything)

	// Дубликатов в пуле нет
	seen := map[uint]bool{}
	for _, id := range exam.ItemPoolIDs {
		assert.False(t, seen[id], "вопрос %d попал в пул дважды", id)
		seen[id] = true
	}
}

// TestGenerateExam_InsufficientCoverage — цель требует 5 вопросов, пул даёт 3.
// Недобор никогда не замалчивается: явная ошибка вместо тихого уменьшения экзамена.
func TestGenerateExam_InsufficientCoverage(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	itemRepo.On("GetByObjectives", []string{"calculus"}, -2.0, 2.0).
		Return(itemsForObjective("calculus", 1, -1, 0, 1), nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(5, entity.ObjectiveTarget{ObjectiveID: "calculus", TargetCount: 5})

	_, err := service.GenerateExam(context.Background(), req)

	assert.ErrorIs(t, err, ErrInsufficientPoolCoverage)
	assert.Contains(t, err.Error(), "calculus")
	examRepo.AssertNotCalled(t, "Create", mock.Anything)
}

// TestGenerateExam_MaxPerObjectiveCaps — квота цели ограничивает целевое число
func TestGenerateExam_MaxPerObjectiveCaps(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	itemRepo.On("GetByObjectives", []string{"algebra"}, -2.0, 2.0).
		Return(itemsForObjective("algebra", 1, -1.5, -0.5, 0.5, 1.5, 1.8), nil)
	examRepo.On("Create", mock.Anything).Return(nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(2, entity.ObjectiveTarget{ObjectiveID: "algebra", TargetCount: 5})
	req.Constraints.MaxPerObjective = 2

	exam, err := service.GenerateExam(context.Background(), req)

	require.NoError(t, err)
	assert.Len(t, exam.ItemPoolIDs, 2, "квота max_per_objective должна ограничить выбор")
}

// TestGenerateExam_StratifiedSpread — выбор покрывает страты сложности,
// а не заполняется жадно из одной страты
func TestGenerateExam_StratifiedSpread(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	// По три вопроса в каждой из четырёх страт [-2,2]
	var candidates []entity.QuestionItem
	candidates = append(candidates, itemsForObjective("obj", 1, -1.9, -1.8, -1.7)...)
	candidates = append(candidates, itemsForObjective("obj", 4, -0.9, -0.8, -0.7)...)
	candidates = append(candidates, itemsForObjective("obj", 7, 0.1, 0.2, 0.3)...)
	candidates = append(candidates, itemsForObjective("obj", 10, 1.1, 1.2, 1.3)...)

	itemRepo.On("GetByObjectives", []string{"obj"}, -2.0, 2.0).Return(candidates, nil)
	examRepo.On("Create", mock.Anything).Return(nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(4, entity.ObjectiveTarget{ObjectiveID: "obj", TargetCount: 4})

	exam, err := service.GenerateExam(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, exam.ItemPoolIDs, 4)
	// Круговой обход страт: по одному вопросу из каждой
	assert.ElementsMatch(t, entity.UintArray{1, 4, 7, 10}, exam.ItemPoolIDs)
}

// TestGenerateExam_TypeQuotaEnforced — квота question_type_distribution
// ограничивает число вопросов типа на весь пул; типы вне карты не ограничены
func TestGenerateExam_TypeQuotaEnforced(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	// Смешанный пул: true_false и multiple_choice в каждой страте
	var candidates []entity.QuestionItem
	candidates = append(candidates, typedItems("obj", entity.QuestionTypeTrueFalse, 1, -1.9, -0.9, 0.1, 1.1)...)
	candidates = append(candidates, typedItems("obj", entity.QuestionTypeMultipleChoice, 5, -1.8, -0.8, 0.2, 1.2)...)

	itemRepo.On("GetByObjectives", []string{"obj"}, -2.0, 2.0).Return(candidates, nil)
	examRepo.On("Create", mock.Anything).Return(nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(4, entity.ObjectiveTarget{ObjectiveID: "obj", TargetCount: 4})
	req.Constraints.QuestionTypeDistribution = map[string]int{entity.QuestionTypeTrueFalse: 1}

	exam, err := service.GenerateExam(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, exam.ItemPoolIDs, 4)

	trueFalse := 0
	for _, id := range exam.ItemPoolIDs {
		if id <= 4 {
			trueFalse++
		}
	}
	assert.Equal(t, 1, trueFalse, "квота true_false=1 должна действовать на весь пул")
}

// TestGenerateExam_TypeQuotaOverconstrained — квота делает цель недостижимой:
// явная ошибка покрытия вместо тихого нарушения квоты
func TestGenerateExam_TypeQuotaOverconstrained(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	itemRepo.On("GetByObjectives", []string{"obj"}, -2.0, 2.0).
		Return(typedItems("obj", entity.QuestionTypeMultipleChoice, 1, -1.5, -0.5, 0.5, 1.5, 1.8, -1.8), nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(4, entity.ObjectiveTarget{ObjectiveID: "obj", TargetCount: 4})
	req.Constraints.QuestionTypeDistribution = map[string]int{entity.QuestionTypeMultipleChoice: 2}

	_, err := service.GenerateExam(context.Background(), req)

	assert.ErrorIs(t, err, ErrInsufficientPoolCoverage)
	examRepo.AssertNotCalled(t, "Create", mock.Anything)
}

// TestGenerateExam_Cancellation — отмена контекста прерывает генерацию,
// частичный результат не сохраняется
func TestGenerateExam_Cancellation(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(5, entity.ObjectiveTarget{ObjectiveID: "obj", TargetCount: 5})

	_, err := service.GenerateExam(ctx, req)

	assert.ErrorIs(t, err, context.Canceled)
	examRepo.AssertNotCalled(t, "Create", mock.Anything)
}

// TestGenerateExam_InvalidRequirements — требования валидируются до обращения к пулу
func TestGenerateExam_InvalidRequirements(t *testing.T) {
	service := NewExamService(new(MockItemRepoForExamService), new(MockExamRepoForExamService))

	_, err := service.GenerateExam(context.Background(), entity.ExamRequirements{})

	assert.Error(t, err)
}

// TestListExams — постраничный список собранных экзаменов
func TestListExams(t *testing.T) {
	examRepo := new(MockExamRepoForExamService)
	stored := []entity.AdaptiveExam{{ID: "e-2"}, {ID: "e-1"}}
	examRepo.On("List", 20, 0).Return(stored, nil)

	service := NewExamService(new(MockItemRepoForExamService), examRepo)

	exams, err := service.ListExams(20, 0)
	require.NoError(t, err)
	assert.Equal(t, stored, exams)
}

// TestDeleteExam — удаление существующего экзамена; несуществующий даёт not found
func TestDeleteExam(t *testing.T) {
	examRepo := new(MockExamRepoForExamService)
	examRepo.On("GetByID", "e-1").Return(&entity.AdaptiveExam{ID: "e-1"}, nil)
	examRepo.On("Delete", "e-1").Return(nil)
	examRepo.On("GetByID", "ghost").Return(nil, apperrors.ErrNotFound)

	service := NewExamService(new(MockItemRepoForExamService), examRepo)

	assert.NoError(t, service.DeleteExam("e-1"))
	assert.ErrorIs(t, service.DeleteExam("ghost"), apperrors.ErrNotFound)
	examRepo.AssertNumberOfCalls(t, "Delete", 1)
}

// TestGenerateExamWithProgress — колбэк прогресса вызывается по каждой цели
func TestGenerateExamWithProgress(t *testing.T) {
	itemRepo := new(MockItemRepoForExamService)
	examRepo := new(MockExamRepoForExamService)

	itemRepo.On("GetByObjectives", []string{"a"}, -2.0, 2.0).
		Return(itemsForObjective("a", 1, -1, 0), nil)
	itemRepo.On("GetByObjectives", []string{"b"}, -2.0, 2.0).
		Return(itemsForObjective("b", 5, -1, 0), nil)
	examRepo.On("Create", mock.Anything).Return(nil)

	service := NewExamService(itemRepo, examRepo)
	req := generationRequest(4,
		entity.ObjectiveTarget{ObjectiveID: "a", TargetCount: 2},
		entity.ObjectiveTarget{ObjectiveID: "b", TargetCount: 2},
	)

	var progress []GenerateProgress
	_, err := service.GenerateExamWithProgress(context.Background(), req, func(p GenerateProgress) {
		progress = append(progress, p)
	})

	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, "a", progress[0].ObjectiveID)
	assert.Equal(t, 1, progress[0].ObjectiveIndex)
	assert.Equal(t, 2, progress[0].ObjectiveTotal)
	assert.Equal(t, "b", progress[1].ObjectiveID)
	assert.Equal(t, 4, progress[1].SelectedSoFar)
}
