package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/examengine-api/internal/service"
)

// WSHandler транслирует прогресс асинхронных задач генерации по WebSocket
type WSHandler struct {
	jobService *service.GenerationJobService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(jobService *service.GenerationJobService) *WSHandler {
	return &WSHandler{jobService: jobService}
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Пустой Origin - не браузерный клиент (curl, скрипты авторинга)
		if origin == "" {
			return true
		}

		// Список разрешенных origin (синхронизирован с CORS в main.go)
		allowedOrigins := []string{
			"http://localhost:5173",
			"http://localhost:3000",
			"http://localhost:8000",
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	},
	EnableCompression: true,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// StreamGenerationJob стримит обновления задачи генерации до её завершения.
// Если задача уже не активна на этом инстансе, отправляется финальное
// состояние из Redis и соединение закрывается.
func (h *WSHandler) StreamGenerationJob(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.jobService.GetJob(jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// Подписываемся ДО апгрейда, чтобы не потерять обновления между проверкой и подпиской
	updates := h.jobService.Subscribe(jobID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] Ошибка апгрейда соединения: %v", err)
		return
	}
	defer conn.Close()

	// Текущее состояние первым сообщением
	if err := h.writeJob(conn, *job); err != nil {
		return
	}

	if updates == nil {
		// Задача уже завершена: финальное состояние отправлено выше
		conn.WriteControl(gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "job finished"),
			time.Now().Add(wsWriteTimeout))
		return
	}

	// Читатель нужен только для обработки close-фреймов клиента
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				// Канал закрыт - задача завершена; отдаем финальное состояние из Redis
				if final, err := h.jobService.GetJob(jobID); err == nil {
					h.writeJob(conn, *final)
				}
				conn.WriteControl(gorillaws.CloseMessage,
					gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "job finished"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := h.writeJob(conn, update); err != nil {
				log.Printf("[WSHandler] Ошибка отправки обновления задачи %s: %v", jobID, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(gorillaws.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (h *WSHandler) writeJob(conn *gorillaws.Conn, job service.GenerationJob) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(job)
}
