package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRequirements() ExamRequirements {
	return ExamRequirements{
		LearningObjectives: []ObjectiveTarget{
			{ObjectiveID: "algebra", TargetCount: 5},
			{ObjectiveID: "geometry", TargetCount: 5},
		},
		Constraints: ExamConstraints{
			TotalQuestions: 10,
			DifficultyMin:  -2,
			DifficultyMax:  2,
		},
		Purpose: ExamPurposeSummative,
	}
}

// TestExamRequirementsValidate_OK — корректные требования проходят проверку
func TestExamRequirementsValidate_OK(t *testing.T) {
	req := validRequirements()
	assert.NoError(t, req.Validate())

	// Purpose опционален
	req.Purpose = ""
	assert.NoError(t, req.Validate())
}

// TestExamRequirementsValidate_Errors — каждое нарушение ловится отдельно
func TestExamRequirementsValidate_Errors(t *testing.T) {
	noObjectives := validRequirements()
	noObjectives.LearningObjectives = nil
	assert.Error(t, noObjectives.Validate())

	emptyID := validRequirements()
	emptyID.LearningObjectives[0].ObjectiveID = ""
	assert.Error(t, emptyID.Validate())

	zeroTarget := validRequirements()
	zeroTarget.LearningObjectives[1].TargetCount = 0
	assert.Error(t, zeroTarget.Validate())

	zeroTotal := validRequirements()
	zeroTotal.Constraints.TotalQuestions = 0
	assert.Error(t, zeroTotal.Validate())

	invertedRange := validRequirements()
	invertedRange.Constraints.DifficultyMin = 2
	invertedRange.Constraints.DifficultyMax = -2
	assert.Error(t, invertedRange.Validate())

	badPurpose := validRequirements()
	badPurpose.Purpose = "casual"
	assert.Error(t, badPurpose.Validate())

	unknownType := validRequirements()
	unknownType.Constraints.QuestionTypeDistribution = map[string]int{"oral_exam": 3}
	assert.Error(t, unknownType.Validate())

	zeroQuota := validRequirements()
	zeroQuota.Constraints.QuestionTypeDistribution = map[string]int{QuestionTypeEssay: 0}
	assert.Error(t, zeroQuota.Validate())
}

// TestSessionStatusHelpers — терминальность и активность статусов
func TestSessionStatusHelpers(t *testing.T) {
	s := &ExamSession{Status: SessionStatusCreated}
	assert.True(t, s.IsActive())
	assert.False(t, s.IsTerminated())

	s.Status = SessionStatusInProgress
	assert.True(t, s.IsActive())

	s.Status = SessionStatusCompleted
	assert.True(t, s.IsTerminated())
	assert.True(t, s.IsCompleted())

	s.Status = SessionStatusAbandoned
	assert.True(t, s.IsTerminated())
	assert.False(t, s.IsCompleted())
}

// TestLastAdministeredItem — последний выданный вопрос
func TestLastAdministeredItem(t *testing.T) {
	s := &ExamSession{}
	assert.Equal(t, uint(0), s.LastAdministeredItem(), "пустая история → 0")

	s.AdministeredItems = UintArray{3, 7, 12}
	assert.Equal(t, uint(12), s.LastAdministeredItem())
}
