package catengine

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// scoreEpsilon — допуск при сравнении информации двух вопросов:
// равные в пределах допуска считаются ничьёй и разрешаются детерминированно
const scoreEpsilon = 1e-12

// ItemSelector выбирает следующий вопрос по максимуму информации Фишера
// при текущей оценке способности. Все ничьи разрешаются детерминированно
// (минимальный счётчик показов, затем минимальный ID), так что одинаковые
// входы всегда дают одинаковый выбор.
type ItemSelector struct {
	config *Config
	deps   *Dependencies
}

// NewItemSelector создаёт новый селектор вопросов
func NewItemSelector(config *Config, deps *Dependencies) *ItemSelector {
	return &ItemSelector{
		config: config,
		deps:   deps,
	}
}

// SelectNext выбирает следующий вопрос для сессии.
// Возвращает nil, когда подходящих вопросов не осталось — это штатный
// сигнал менеджеру сессий завершить экзамен (пул исчерпан), а не ошибка.
func (s *ItemSelector) SelectNext(state *ActiveSessionState, theta float64) *entity.QuestionItem {
	req := s.maxPerObjective(state)

	// 1. Фильтр допустимости: не выдан ранее + квоты целей не исчерпаны
	var eligible []*entity.QuestionItem
	for i := range state.PoolItems {
		item := &state.PoolItems[i]
		if state.Session.AdministeredItems.Contains(item.ID) {
			continue
		}
		if !s.objectiveEligible(item, state.ObjectiveCounts, req) {
			continue
		}
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return nil
	}

	// 2. Живые счётчики показов (Redis), с откатом на снимок из пула
	exposures := make(map[uint]int64, len(eligible))
	for _, item := range eligible {
		exposures[item.ID] = s.liveExposureCount(item)
	}
	threshold := exposureThreshold(exposures, s.config.ExposurePercentile)

	// 3. Скоринг: информация Фишера при текущей theta.
	// Перэкспонированные вопросы штрафуются мягко, а не исключаются:
	// жёсткое исключение истощает пул при множестве параллельных сессий.
	var best *entity.QuestionItem
	var bestScore float64
	for _, item := range eligible {
		score := item.IRTParams.FisherInformation(theta)
		if threshold > 0 && exposures[item.ID] > threshold {
			score *= s.config.ExposurePenalty
		}

		if best == nil || score > bestScore+scoreEpsilon {
			best, bestScore = item, score
			continue
		}
		if math.Abs(score-bestScore) <= scoreEpsilon && s.breakTie(item, best, exposures) {
			best, bestScore = item, score
		}
	}

	log.Printf("[ItemSelector] Сессия %s: выбран вопрос ID=%d (info=%.4f при theta=%.3f, кандидатов=%d)",
		state.Session.ID, best.ID, bestScore, theta, len(eligible))

	return best
}

// objectiveEligible проверяет, осталась ли у вопроса хотя бы одна цель
// с неисчерпанной квотой max_per_objective
func (s *ItemSelector) objectiveEligible(item *entity.QuestionItem, counts map[string]int, maxPerObjective int) bool {
	if maxPerObjective <= 0 {
		return true
	}
	for _, tag := range item.ObjectiveTags {
		if counts[tag] < maxPerObjective {
			return true
		}
	}
	return false
}

// breakTie возвращает true, если candidate должен вытеснить current при равном скоре
func (s *ItemSelector) breakTie(candidate, current *entity.QuestionItem, exposures map[uint]int64) bool {
	if exposures[candidate.ID] != exposures[current.ID] {
		return exposures[candidate.ID] < exposures[current.ID]
	}
	return candidate.ID < current.ID
}

// liveExposureCount читает живой счётчик показов из Redis.
// Счётчики разделяются всеми параллельными сессиями; при недоступности
// Redis используется снимок из пула (exposure control — мягкая эвристика).
func (s *ItemSelector) liveExposureCount(item *entity.QuestionItem) int64 {
	if s.deps == nil || s.deps.CacheRepo == nil {
		return item.ExposureCount
	}
	val, err := s.deps.CacheRepo.Get(ExposureKey(item.ID))
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[ItemSelector] WARNING: Ошибка Redis при чтении показов вопроса #%d: %v", item.ID, err)
		}
		return item.ExposureCount
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return item.ExposureCount
	}
	return count
}

// maxPerObjective достаёт квоту из требований экзамена в снимке сессии
func (s *ItemSelector) maxPerObjective(state *ActiveSessionState) int {
	return state.MaxPerObjective
}

// exposureThreshold возвращает значение счётчика показов на заданном
// перцентиле. 0 означает "порога нет" (слишком мало данных).
func exposureThreshold(exposures map[uint]int64, percentile float64) int64 {
	if len(exposures) < 2 || percentile <= 0 || percentile >= 1 {
		return 0
	}
	values := make([]int64, 0, len(exposures))
	for _, v := range exposures {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	idx := int(math.Ceil(percentile*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}

// ExposureKey возвращает ключ Redis для счётчика показов вопроса
func ExposureKey(itemID uint) string {
	return fmt.Sprintf("item:%d:exposure", itemID)
}
