package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/domain/repository"
)

// difficultyBands — число страт сложности при отборе вопросов по цели
const difficultyBands = 4

// GenerateProgress — отчёт о ходе генерации экзамена
type GenerateProgress struct {
	ObjectiveIndex int    `json:"objective_index"` // 1-indexed
	ObjectiveTotal int    `json:"objective_total"`
	ObjectiveID    string `json:"objective_id"`
	SelectedSoFar  int    `json:"selected_so_far"`
}

// ProgressFunc вызывается после обработки каждой учебной цели
type ProgressFunc func(GenerateProgress)

// ExamService собирает статические пулы экзаменов из общего пула вопросов
type ExamService struct {
	itemRepo repository.ItemRepository
	examRepo repository.ExamRepository
}

// NewExamService создает новый сервис генерации экзаменов
func NewExamService(itemRepo repository.ItemRepository, examRepo repository.ExamRepository) *ExamService {
	return &ExamService{
		itemRepo: itemRepo,
		examRepo: examRepo,
	}
}

// GenerateExam собирает экзамен, удовлетворяющий требованиям.
// Возвращает ErrInsufficientPoolCoverage, если какая-то цель не может
// набрать целевое число вопросов — недобор никогда не замалчивается.
func (s *ExamService) GenerateExam(ctx context.Context, req entity.ExamRequirements) (*entity.AdaptiveExam, error) {
	return s.generate(ctx, req, nil)
}

// GenerateExamWithProgress — вариант с отчётом о ходе: для больших пулов
// генерация может быть долгой, отмена через ctx просто отбрасывает
// частичный результат (ничего не сохраняется).
func (s *ExamService) GenerateExamWithProgress(ctx context.Context, req entity.ExamRequirements, progress ProgressFunc) (*entity.AdaptiveExam, error) {
	return s.generate(ctx, req, progress)
}

func (s *ExamService) generate(ctx context.Context, req entity.ExamRequirements, progress ProgressFunc) (*entity.AdaptiveExam, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid requirements: %w", err)
	}

	selected := make([]entity.QuestionItem, 0, req.Constraints.TotalQuestions)
	selectedIDs := make(map[uint]bool)
	// Счётчики квот по типам вопросов действуют на весь пул экзамена
	typeCounts := make(map[string]int)

	// Жадный обход целей в порядке требований
	for i, objective := range req.LearningObjectives {
		if err := ctx.Err(); err != nil {
			log.Printf("[ExamGenerator] Генерация отменена на цели %q: %v", objective.ObjectiveID, err)
			return nil, err
		}

		candidates, err := s.itemRepo.GetByObjectives(
			[]string{objective.ObjectiveID},
			req.Constraints.DifficultyMin,
			req.Constraints.DifficultyMax,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidates for objective %q: %w", objective.ObjectiveID, err)
		}

		target := objective.TargetCount
		if max := req.Constraints.MaxPerObjective; max > 0 && target > max {
			target = max
		}

		picked := pickStratified(candidates, selectedIDs, target,
			req.Constraints.DifficultyMin, req.Constraints.DifficultyMax,
			req.Constraints.QuestionTypeDistribution, typeCounts)
		if len(picked) < target {
			return nil, fmt.Errorf("%w: objective %q requires %d items, pool provides %d",
				ErrInsufficientPoolCoverage, objective.ObjectiveID, target, len(picked))
		}

		for _, item := range picked {
			selected = append(selected, item)
			selectedIDs[item.ID] = true
		}

		if progress != nil {
			progress(GenerateProgress{
				ObjectiveIndex: i + 1,
				ObjectiveTotal: len(req.LearningObjectives),
				ObjectiveID:    objective.ObjectiveID,
				SelectedSoFar:  len(selected),
			})
		}
	}

	// Инвариант: размер пула >= total_questions (адаптивная сессия выберет подмножество)
	if len(selected) < req.Constraints.TotalQuestions {
		topped, err := s.topUpPool(req, selected, selectedIDs, typeCounts)
		if err != nil {
			return nil, err
		}
		selected = topped
	}

	poolIDs := make(entity.UintArray, len(selected))
	for i, item := range selected {
		poolIDs[i] = item.ID
	}

	exam := &entity.AdaptiveExam{
		ID:           uuid.NewString(),
		Requirements: req,
		ItemPoolIDs:  poolIDs,
	}
	if err := s.examRepo.Create(exam); err != nil {
		return nil, fmt.Errorf("failed to persist exam: %w", err)
	}

	log.Printf("[ExamGenerator] Собран экзамен %s: %d вопросов в пуле, %d целей, назначение %q",
		exam.ID, len(poolIDs), len(req.LearningObjectives), req.Purpose)

	return exam, nil
}

// topUpPool добирает пул до total_questions из всех целей экзамена
func (s *ExamService) topUpPool(req entity.ExamRequirements, selected []entity.QuestionItem, selectedIDs map[uint]bool, typeCounts map[string]int) ([]entity.QuestionItem, error) {
	objectives := make([]string, len(req.LearningObjectives))
	for i, obj := range req.LearningObjectives {
		objectives[i] = obj.ObjectiveID
	}

	candidates, err := s.itemRepo.GetByObjectives(objectives,
		req.Constraints.DifficultyMin, req.Constraints.DifficultyMax)
	if err != nil {
		return nil, fmt.Errorf("failed to load top-up candidates: %w", err)
	}

	need := req.Constraints.TotalQuestions - len(selected)
	extra := pickStratified(candidates, selectedIDs, need,
		req.Constraints.DifficultyMin, req.Constraints.DifficultyMax,
		req.Constraints.QuestionTypeDistribution, typeCounts)
	if len(extra) < need {
		return nil, fmt.Errorf("%w: pool must hold at least total_questions=%d items, found %d",
			ErrInsufficientPoolCoverage, req.Constraints.TotalQuestions, len(selected)+len(extra))
	}

	for _, item := range extra {
		selected = append(selected, item)
		selectedIDs[item.ID] = true
	}
	return selected, nil
}

// GetExam возвращает экзамен по ID
func (s *ExamService) GetExam(id string) (*entity.AdaptiveExam, error) {
	return s.examRepo.GetByID(id)
}

// ListExams возвращает собранные экзамены постранично, новые первыми
func (s *ExamService) ListExams(limit, offset int) ([]entity.AdaptiveExam, error) {
	return s.examRepo.List(limit, offset)
}

// DeleteExam удаляет собранный экзамен. Экзамен с открытыми сессиями
// удалить нельзя: внешний ключ exam_sessions.exam_id удержит запись.
func (s *ExamService) DeleteExam(id string) error {
	if _, err := s.examRepo.GetByID(id); err != nil {
		return err
	}
	return s.examRepo.Delete(id)
}

// pickStratified выбирает до target вопросов, равномерно покрывая диапазон
// сложности стратами. Обход страт по кругу; внутри страты порядок
// детерминированный: меньше показов, затем меньший ID. Квоты типов
// (typeQuotas) действуют сквозь вызовы через общий счётчик typeCounts;
// вопрос исчерпанного типа пропускается.
func pickStratified(candidates []entity.QuestionItem, exclude map[uint]bool, target int, min, max float64, typeQuotas map[string]int, typeCounts map[string]int) []entity.QuestionItem {
	if target <= 0 {
		return nil
	}

	bands := make([][]entity.QuestionItem, difficultyBands)
	width := (max - min) / difficultyBands
	for _, item := range candidates {
		if exclude[item.ID] {
			continue
		}
		band := 0
		if width > 0 {
			band = int((item.IRTParams.Difficulty - min) / width)
		}
		if band < 0 {
			band = 0
		}
		if band >= difficultyBands {
			band = difficultyBands - 1
		}
		bands[band] = append(bands[band], item)
	}

	for _, band := range bands {
		sort.Slice(band, func(i, j int) bool {
			if band[i].ExposureCount != band[j].ExposureCount {
				return band[i].ExposureCount < band[j].ExposureCount
			}
			return band[i].ID < band[j].ID
		})
	}

	// Круговой обход страт, пока не наберём target или страты не опустеют
	var picked []entity.QuestionItem
	cursors := make([]int, difficultyBands)
	for len(picked) < target {
		advanced := false
		for b := 0; b < difficultyBands && len(picked) < target; b++ {
			for cursors[b] < len(bands[b]) {
				item := bands[b][cursors[b]]
				cursors[b]++
				advanced = true
				if quota, capped := typeQuotas[item.QuestionType]; capped && typeCounts[item.QuestionType] >= quota {
					// Квота типа исчерпана — вопрос недоступен
					continue
				}
				picked = append(picked, item)
				typeCounts[item.QuestionType]++
				break
			}
		}
		if !advanced {
			break
		}
	}
	return picked
}
