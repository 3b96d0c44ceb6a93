package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/domain/repository"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// Константы статусов задач генерации
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
	JobStatusFailed    = "failed"
)

// jobTTL — время жизни записи о задаче в Redis после завершения
const jobTTL = time.Hour

// GenerationJob — состояние асинхронной задачи генерации экзамена.
// Хранится в Redis с TTL, а не в process-local map: запись доживает до
// истечения срока и видна всем инстансам сервиса.
type GenerationJob struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Progress  *GenerateProgress `json:"progress,omitempty"`
	ExamID    string            `json:"exam_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// GenerationJobService управляет асинхронными задачами генерации экзаменов:
// запуск, прогресс, отмена. Отмена просто отбрасывает частичный результат.
type GenerationJobService struct {
	examService *ExamService
	cacheRepo   repository.CacheRepository

	// Живые задачи этого инстанса: функция отмены + подписчики на прогресс
	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	listeners map[string][]chan GenerationJob
}

// NewGenerationJobService создает новый сервис задач генерации
func NewGenerationJobService(examService *ExamService, cacheRepo repository.CacheRepository) *GenerationJobService {
	return &GenerationJobService{
		examService: examService,
		cacheRepo:   cacheRepo,
		cancels:     make(map[string]context.CancelFunc),
		listeners:   make(map[string][]chan GenerationJob),
	}
}

// StartJob запускает генерацию экзамена в фоне и возвращает ID задачи
func (s *GenerationJobService) StartJob(req entity.ExamRequirements) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid requirements: %w", err)
	}

	jobID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	job := GenerationJob{
		ID:        jobID,
		Status:    JobStatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.saveJob(job)

	go s.run(ctx, jobID, req)

	log.Printf("[GenerationJob] Запущена задача генерации %s", jobID)
	return jobID, nil
}

// run выполняет генерацию, публикуя прогресс после каждой учебной цели
func (s *GenerationJobService) run(ctx context.Context, jobID string, req entity.ExamRequirements) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		for _, ch := range s.listeners[jobID] {
			close(ch)
		}
		delete(s.listeners, jobID)
		s.mu.Unlock()
	}()

	exam, err := s.examService.GenerateExamWithProgress(ctx, req, func(p GenerateProgress) {
		s.updateJob(jobID, func(job *GenerationJob) {
			job.Progress = &p
		})
	})

	switch {
	case err == nil:
		s.updateJob(jobID, func(job *GenerationJob) {
			job.Status = JobStatusCompleted
			job.ExamID = exam.ID
		})
	case errors.Is(err, context.Canceled):
		// Частичный результат отброшен, ничего не сохранено
		s.updateJob(jobID, func(job *GenerationJob) {
			job.Status = JobStatusCancelled
		})
	default:
		s.updateJob(jobID, func(job *GenerationJob) {
			job.Status = JobStatusFailed
			job.Error = err.Error()
		})
	}
}

// CancelJob отменяет идущую задачу генерации
func (s *GenerationJobService) CancelJob(jobID string) error {
	s.mu.Lock()
	cancel, found := s.cancels[jobID]
	s.mu.Unlock()

	if !found {
		// Задача не на этом инстансе или уже завершена — смотрим Redis
		if _, err := s.GetJob(jobID); err != nil {
			return err
		}
		return fmt.Errorf("job %s is not cancellable: already finished", jobID)
	}

	cancel()
	log.Printf("[GenerationJob] Задача %s отменена", jobID)
	return nil
}

// GetJob возвращает текущее состояние задачи
func (s *GenerationJobService) GetJob(jobID string) (*GenerationJob, error) {
	var job GenerationJob
	if err := s.cacheRepo.GetJSON(jobKey(jobID), &job); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Subscribe возвращает канал обновлений задачи. Канал закрывается по
// завершении задачи; nil — задача уже не активна на этом инстансе.
func (s *GenerationJobService) Subscribe(jobID string) <-chan GenerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.cancels[jobID]; !running {
		return nil
	}
	ch := make(chan GenerationJob, 8)
	s.listeners[jobID] = append(s.listeners[jobID], ch)
	return ch
}

// saveJob сохраняет состояние задачи в Redis с TTL
func (s *GenerationJobService) saveJob(job GenerationJob) {
	if err := s.cacheRepo.SetJSON(jobKey(job.ID), job, jobTTL); err != nil {
		log.Printf("[GenerationJob] WARNING: не удалось сохранить задачу %s: %v", job.ID, err)
	}
}

// updateJob читает, модифицирует и сохраняет запись о задаче, уведомляя подписчиков
func (s *GenerationJobService) updateJob(jobID string, mutate func(*GenerationJob)) {
	job, err := s.GetJob(jobID)
	if err != nil {
		job = &GenerationJob{ID: jobID, Status: JobStatusRunning, CreatedAt: time.Now()}
	}
	mutate(job)
	job.UpdatedAt = time.Now()
	s.saveJob(*job)

	s.mu.Lock()
	for _, ch := range s.listeners[jobID] {
		select {
		case ch <- *job:
		default:
			// Медленный подписчик пропускает промежуточное обновление
		}
	}
	s.mu.Unlock()
}

func jobKey(jobID string) string {
	return fmt.Sprintf("genjob:%s", jobID)
}
