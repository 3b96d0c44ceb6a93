package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/examengine-api/internal/domain/entity"
	"github.com/yourusername/examengine-api/internal/domain/repository"
	"github.com/yourusername/examengine-api/internal/handler/dto"
	apperrors "github.com/yourusername/examengine-api/internal/pkg/errors"
)

// ItemHandler обрабатывает запросы управления пулом вопросов
type ItemHandler struct {
	itemRepo repository.ItemRepository
}

// NewItemHandler создает новый обработчик пула вопросов
func NewItemHandler(itemRepo repository.ItemRepository) *ItemHandler {
	return &ItemHandler{itemRepo: itemRepo}
}

// CreateItem добавляет один вопрос в пул
func (h *ItemHandler) CreateItem(c *gin.Context) {
	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := req.ToEntity()
	if err := item.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.itemRepo.Create(&item); err != nil {
		h.handleItemError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// CreateItemBatch добавляет пакет вопросов одной транзакцией.
// При ошибке валидации любого вопроса пакет отклоняется целиком.
func (h *ItemHandler) CreateItemBatch(c *gin.Context) {
	var req dto.CreateItemBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]entity.QuestionItem, len(req.Items))
	for i := range req.Items {
		items[i] = req.Items[i].ToEntity()
		if err := items[i].Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("item %d: %v", i, err),
			})
			return
		}
	}

	if err := h.itemRepo.CreateBatch(items); err != nil {
		h.handleItemError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": len(items)})
}

// GetItem возвращает вопрос по ID
func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := h.parseItemID(c)
	if !ok {
		return
	}

	item, err := h.itemRepo.GetByID(id)
	if err != nil {
		h.handleItemError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// UpdateItem заменяет редактируемые поля вопроса.
// Версия параметров и счётчик показов при этом сохраняются:
// их меняют только калибровка и выдача вопросов.
func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := h.parseItemID(c)
	if !ok {
		return
	}

	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.itemRepo.GetByID(id)
	if err != nil {
		h.handleItemError(c, err)
		return
	}

	updated := req.ToEntity()
	item.QuestionType = updated.QuestionType
	item.ObjectiveTags = updated.ObjectiveTags
	item.IRTParams = updated.IRTParams
	item.ContentRef = updated.ContentRef
	item.AnswerKey = updated.AnswerKey
	item.PointValue = updated.PointValue

	if err := item.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.itemRepo.Update(item); err != nil {
		h.handleItemError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeleteItem удаляет вопрос из пула
func (h *ItemHandler) DeleteItem(c *gin.Context) {
	id, ok := h.parseItemID(c)
	if !ok {
		return
	}

	if err := h.itemRepo.Delete(id); err != nil {
		h.handleItemError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// parseItemID извлекает числовой ID вопроса из пути запроса
func (h *ItemHandler) parseItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, false
	}
	return uint(id), true
}

// handleItemError преобразует доменные ошибки в HTTP статусы
func (h *ItemHandler) handleItemError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[ItemHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
