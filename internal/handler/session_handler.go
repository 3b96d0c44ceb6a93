package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/examengine-api/internal/handler/dto"
	"github.com/yourusername/examengine-api/internal/service"
)

// SessionHandler обрабатывает запросы жизненного цикла сессий экзаменов
type SessionHandler struct {
	sessionManager *service.SessionManager
}

// NewSessionHandler создает новый обработчик сессий
func NewSessionHandler(sessionManager *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessionManager: sessionManager}
}

// StartSession открывает новую сессию экзамена
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionManager.StartSession(req.ExamID, req.LearnerID, req.InitialAbility)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession возвращает текущее состояние сессии
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessionManager.GetSession(c.Param("id"))
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetSessionResponses возвращает журнал ответов сессии в порядке выдачи
func (h *SessionHandler) GetSessionResponses(c *gin.Context) {
	responses, err := h.sessionManager.GetSessionResponses(c.Param("id"))
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses)
}

// GetNextQuestion выдаёт следующий вопрос сессии.
// PoolExhausted — штатный сигнал: клиенту следует запросить результаты.
func (h *SessionHandler) GetNextQuestion(c *gin.Context) {
	item, err := h.sessionManager.GetNextQuestion(c.Param("id"))
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// SubmitResponse принимает ответ учащегося на последний выданный вопрос
func (h *SessionHandler) SubmitResponse(c *gin.Context) {
	var req dto.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scored, err := h.sessionManager.SubmitResponse(
		c.Param("id"), req.ItemID, req.RawResponse, req.ResponseTimeMs, req.ConfidenceLevel)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, scored)
}

// CompleteExam завершает сессию и возвращает итоговый отчёт (идемпотентно)
func (h *SessionHandler) CompleteExam(c *gin.Context) {
	results, err := h.sessionManager.CompleteExam(c.Param("id"))
	if err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// AbandonSession переводит сессию в статус abandoned
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	if err := h.sessionManager.AbandonSession(c.Param("id")); err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "abandoned"})
}

// handleSessionError преобразует доменные ошибки в HTTP статусы
// согласно таксономии: not-found, protocol, data-sufficiency
func (h *SessionHandler) handleSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrExamNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionTerminated),
		errors.Is(err, service.ErrItemNotAdministered),
		errors.Is(err, service.ErrNoQuestionIssued):
		// Протокольные ошибки: вызовы не по порядку, сессия не изменена
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPoolExhausted):
		// Штатное досрочное завершение, не сбой
		c.JSON(http.StatusGone, gin.H{
			"error":  err.Error(),
			"action": "call complete endpoint for final results",
		})
	default:
		log.Printf("[SessionHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
