package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/handler/dto"
	"github.com/yourusername/examengine-api/internal/service"
)

// CalibrationHandler обрабатывает запросы калибровки параметров вопросов
type CalibrationHandler struct {
	calibrationService *service.CalibrationService
}

// NewCalibrationHandler создает новый обработчик калибровки
func NewCalibrationHandler(calibrationService *service.CalibrationService) *CalibrationHandler {
	return &CalibrationHandler{calibrationService: calibrationService}
}

// RunCalibration запускает переоценку параметров.
// Если матрица ответов не передана, берётся снимок из журнала завершённых сессий.
func (h *CalibrationHandler) RunCalibration(c *gin.Context) {
	var req dto.RunCalibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var calibration *entity.DifficultyCalibration
	var err error
	if observations := req.ToObservations(); len(observations) > 0 {
		calibration, err = h.calibrationService.CalibrateObservations(observations)
	} else {
		calibration, err = h.calibrationService.RunCalibration(req.SnapshotLimit)
	}
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, calibration)
}

// GetCalibration возвращает сохранённый результат калибровки
func (h *CalibrationHandler) GetCalibration(c *gin.Context) {
	calibration, err := h.calibrationService.GetCalibration(c.Param("id"))
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, calibration)
}

// ListCalibrations возвращает список калибровок с пагинацией
func (h *CalibrationHandler) ListCalibrations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	calibrations, err := h.calibrationService.ListCalibrations(limit, offset)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, calibrations)
}

// ApplyCalibration применяет оценки к пулу вопросов и повышает версию параметров
func (h *CalibrationHandler) ApplyCalibration(c *gin.Context) {
	updated, err := h.calibrationService.ApplyCalibration(c.Param("id"))
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_items": updated})
}

// ExportCalibration выгружает результат калибровки в Excel-файл
// для ревью психометристами перед применением
func (h *CalibrationHandler) ExportCalibration(c *gin.Context) {
	id := c.Param("id")
	calibration, err := h.calibrationService.GetCalibration(id)
	if err != nil {
		h.handleCalibrationError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"calibration_%s.xlsx\"", id))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Оценки"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[CalibrationHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	// Заголовки
	headers := []interface{}{"ID вопроса", "Дискриминация (a)", "Трудность (b)", "Угадывание (c)", "SE(a)", "SE(b)", "Ответов"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[CalibrationHandler] Ошибка записи заголовков: %v", err)
	}

	for i, est := range calibration.ItemEstimates {
		rowNum := i + 2 // Начинаем с 2 строки (1 - заголовки)
		cell := fmt.Sprintf("A%d", rowNum)

		row := []interface{}{
			est.ItemID,
			est.Params.Discrimination,
			est.Params.Difficulty,
			est.Params.Guessing,
			est.SEDiscrimination,
			est.SEDifficulty,
			est.ResponseCount,
		}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[CalibrationHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[CalibrationHandler] Ошибка при Flush: %v", err)
	}

	// Сводный лист: размер выборки, сходимость, пропущенные вопросы
	if _, err := f.NewSheet("Сводка"); err == nil {
		converged := "Нет"
		if calibration.FitStats.Converged {
			converged = "Да"
		}
		f.SetCellValue("Сводка", "A1", "ID калибровки")
		f.SetCellValue("Сводка", "B1", calibration.ID)
		f.SetCellValue("Сводка", "A2", "Размер выборки")
		f.SetCellValue("Сводка", "B2", calibration.SampleSize)
		f.SetCellValue("Сводка", "A3", "Лог-правдоподобие")
		f.SetCellValue("Сводка", "B3", calibration.FitStats.LogLikelihood)
		f.SetCellValue("Сводка", "A4", "Сходимость")
		f.SetCellValue("Сводка", "B4", converged)
		f.SetCellValue("Сводка", "A5", "Итераций")
		f.SetCellValue("Сводка", "B5", calibration.FitStats.Iterations)
		f.SetCellValue("Сводка", "A6", "Пропущено вопросов")
		f.SetCellValue("Сводка", "B6", len(calibration.SkippedItemIDs))
	}

	// Записываем в response
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[CalibrationHandler] Ошибка записи Excel в response: %v", err)
	}
}

// handleCalibrationError преобразует доменные ошибки в HTTP статусы
func (h *CalibrationHandler) handleCalibrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[CalibrationHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
