package catengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/examengine-api/internal/domain/entity"
)

// testPool строит снимок параметров: n вопросов с a=1, b равномерно в [-2, 2], c=0
func testPool(n int) map[uint]entity.IRTParams {
	params := make(map[uint]entity.IRTParams, n)
	for i := 0; i < n; i++ {
		b := -2.0 + 4.0*float64(i)/float64(n-1)
		params[uint(i+1)] = entity.IRTParams{Discrimination: 1.0, Difficulty: b}
	}
	return params
}

func responsesFor(correct []bool) []entity.ExamResponse {
	responses := make([]entity.ExamResponse, len(correct))
	for i, c := range correct {
		responses[i] = entity.ExamResponse{ItemID: uint(i + 1), IsCorrect: c}
	}
	return responses
}

// TestEstimate_EmptyHistory — без ответов возвращается априорное среднее
// с начальной стандартной ошибкой
func TestEstimate_EmptyHistory(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())

	est := estimator.Estimate(nil, testPool(10))

	assert.Equal(t, 0.0, est.Theta)
	assert.Equal(t, 1.0, est.SE)
	assert.Equal(t, EstimateMethodEAP, est.Method)
}

// TestEstimate_AllCorrectDoesNotDiverge — история "всё правильно" разваливает
// MLE, но EAP с нормальным априорным распределением даёт конечную оценку.
// Это ключевой сценарий первых вопросов любой сессии.
func TestEstimate_AllCorrectDoesNotDiverge(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())

	est := estimator.Estimate(responsesFor([]bool{true, true, true}), testPool(3))

	assert.Greater(t, est.Theta, 0.0, "все правильные → оценка выше среднего")
	assert.Less(t, est.Theta, 4.0, "оценка остаётся в пределах сетки")
	assert.Equal(t, EstimateMethodEAP, est.Method, "короткая история → только EAP")
	assert.Greater(t, est.SE, 0.0)
}

// TestEstimate_AllIncorrect — зеркальный случай
func TestEstimate_AllIncorrect(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())

	est := estimator.Estimate(responsesFor([]bool{false, false, false}), testPool(3))

	assert.Less(t, est.Theta, 0.0)
	assert.Greater(t, est.Theta, -4.0)
}

// TestEstimate_MoreCorrectMeansHigherTheta — оценка монотонна по числу
// правильных ответов на одном и том же наборе вопросов
func TestEstimate_MoreCorrectMeansHigherTheta(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())
	params := testPool(10)

	var prev float64 = -100
	for nCorrect := 0; nCorrect <= 10; nCorrect += 2 {
		correct := make([]bool, 10)
		for i := 0; i < nCorrect; i++ {
			correct[i] = true
		}
		est := estimator.Estimate(responsesFor(correct), params)
		assert.Greater(t, est.Theta, prev,
			"оценка при %d правильных должна превышать оценку при %d", nCorrect, nCorrect-2)
		prev = est.Theta
	}
}

// TestEstimate_MixedHistoryNearZero — 5 правильных + 5 неправильных на
// симметричном пуле → оценка около нуля, метод MLE (история достаточно длинная)
func TestEstimate_MixedHistoryNearZero(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())

	correct := []bool{true, false, true, false, true, false, true, false, true, false}
	est := estimator.Estimate(responsesFor(correct), testPool(10))

	assert.InDelta(t, 0.0, est.Theta, 0.6, "смешанная история на симметричном пуле → theta около 0")
	assert.Equal(t, EstimateMethodMLE, est.Method, "длинная смешанная история → Ньютон-Рафсон")
	assert.Greater(t, est.SE, 0.0)
	assert.Less(t, est.SE, 1.0, "после 10 ответов неопределённость должна снизиться")
}

// TestEstimate_MLEFallsBackOnExtremeHistory — длинная история "всё правильно"
// уводит MLE за границу, оценщик откатывается на EAP
func TestEstimate_MLEFallsBackOnExtremeHistory(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())

	correct := make([]bool, 8)
	for i := range correct {
		correct[i] = true
	}
	est := estimator.Estimate(responsesFor(correct), testPool(8))

	assert.Equal(t, EstimateMethodEAP, est.Method, "расходящийся MLE → возврат к EAP")
	assert.Less(t, est.Theta, 4.0)
}

// TestEstimate_SEShrinksWithHistory — стандартная ошибка убывает с накоплением ответов
func TestEstimate_SEShrinksWithHistory(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())
	params := testPool(20)

	short := estimator.Estimate(responsesFor([]bool{true, false}), params)
	correct := make([]bool, 20)
	for i := range correct {
		correct[i] = i%2 == 0
	}
	long := estimator.Estimate(responsesFor(correct), params)

	assert.Less(t, long.SE, short.SE, "SE после 20 ответов должна быть меньше, чем после 2")
}

// TestEstimate_UnknownItemsIgnored — ответы на вопросы вне снимка параметров
// не влияют на оценку
func TestEstimate_UnknownItemsIgnored(t *testing.T) {
	estimator := NewAbilityEstimator(DefaultConfig())
	params := testPool(3)

	base := estimator.Estimate(responsesFor([]bool{true, true, false}), params)

	withUnknown := append(responsesFor([]bool{true, true, false}),
		entity.ExamResponse{ItemID: 999, IsCorrect: false})
	est := estimator.Estimate(withUnknown, params)

	assert.InDelta(t, base.Theta, est.Theta, 1e-9)
}
