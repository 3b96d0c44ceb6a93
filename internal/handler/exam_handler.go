package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/examengine-api/internal/domain/repository"
	"github.com/yourusername/examengine-api/internal/handler/dto"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
	"github.com/yourusername/examengine-api/internal/service"
)

// ExamHandler обрабатывает запросы, связанные с генерацией экзаменов
type ExamHandler struct {
	examService *service.ExamService
	jobService  *service.GenerationJobService
	itemRepo    repository.ItemRepository
}

// NewExamHandler создает новый обработчик экзаменов
func NewExamHandler(
	examService *service.ExamService,
	jobService *service.GenerationJobService,
	itemRepo repository.ItemRepository,
) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		jobService:  jobService,
		itemRepo:    itemRepo,
	}
}

// GenerateExam обрабатывает синхронную генерацию экзамена
func (h *ExamHandler) GenerateExam(c *gin.Context) {
	var req dto.GenerateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exam, err := h.examService.GenerateExam(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// StartGenerationJob запускает асинхронную генерацию экзамена
func (h *ExamHandler) StartGenerationJob(c *gin.Context) {
	var req dto.GenerateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.jobService.StartJob(req.ToEntity())
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetGenerationJob возвращает состояние задачи генерации
func (h *ExamHandler) GetGenerationJob(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Param("id"))
	if err != nil {
		h.handleExamError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelGenerationJob отменяет идущую задачу генерации
func (h *ExamHandler) CancelGenerationJob(c *gin.Context) {
	if err := h.jobService.CancelJob(c.Param("id")); err != nil {
		h.handleExamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// GetExam возвращает экзамен по ID
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, err := h.examService.GetExam(c.Param("id"))
	if err != nil {
		h.handleExamError(c, err)
		return
	}
	c.JSON(http.StatusOK, exam)
}

// difficultyBands — полосы шкалы θ для обзорной статистики пула
var difficultyBands = []struct {
	Label    string
	Min, Max float64
}{
	{"very_easy", -4.0, -2.0},
	{"easy", -2.0, 0.0},
	{"hard", 0.0, 2.0},
	{"very_hard", 2.0, 4.0},
}

// GetPoolStats возвращает статистику пула вопросов:
// всего, разбивка по типам и по полосам сложности
func (h *ExamHandler) GetPoolStats(c *gin.Context) {
	total, byType, err := h.itemRepo.GetPoolStats()
	if err != nil {
		log.Printf("[ExamHandler] Ошибка получения статистики пула: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load pool stats"})
		return
	}

	byDifficulty := make(map[string]int64, len(difficultyBands))
	for _, band := range difficultyBands {
		count, err := h.itemRepo.CountByDifficultyBand(band.Min, band.Max)
		if err != nil {
			log.Printf("[ExamHandler] Ошибка подсчёта полосы %s: %v", band.Label, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load pool stats"})
			return
		}
		byDifficulty[band.Label] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"total":         total,
		"by_type":       byType,
		"by_difficulty": byDifficulty,
	})
}

// ListExams возвращает список сгенерированных экзаменов с пагинацией
func (h *ExamHandler) ListExams(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	exams, err := h.examService.ListExams(limit, offset)
	if err != nil {
		h.handleExamError(c, err)
		return
	}
	c.JSON(http.StatusOK, exams)
}

// DeleteExam удаляет экзамен без открытых сессий
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	if err := h.examService.DeleteExam(c.Param("id")); err != nil {
		h.handleExamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleExamError преобразует доменные ошибки в HTTP статусы
func (h *ExamHandler) handleExamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientPoolCoverage):
		// Недобор покрытия — ошибка данных, а не сервера
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[ExamHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
