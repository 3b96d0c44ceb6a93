package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/examengine-api/internal/config"
	"github.com/yourusername/examengine-api/internal/handler"
	"github.com/yourusername/examengine-api/internal/middleware"
	"github.com/yourusername/examengine-api/internal/service"
	"github.com/yourusername/examengine-api/internal/service/catengine"
	"github.com/yourusername/examengine-api/pkg/database"

	pgRepo "github.com/yourusername/examengine-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/examengine-api/internal/repository/redis"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	itemRepo := pgRepo.NewItemRepo(db)
	examRepo := pgRepo.NewExamRepo(db)
	sessionRepo := pgRepo.NewSessionRepo(db)
	calibrationRepo := pgRepo.NewCalibrationRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Конфигурация движка: умолчания из конфига поверх встроенных значений
	engineConfig := cfg.Engine.ToEngineConfig()
	deps := &catengine.Dependencies{
		ItemRepo:        itemRepo,
		ExamRepo:        examRepo,
		SessionRepo:     sessionRepo,
		CalibrationRepo: calibrationRepo,
		CacheRepo:       cacheRepo,
		Config:          engineConfig,
	}

	// Инициализируем сервисы
	resultService := service.NewResultService(engineConfig)
	sessionManager := service.NewSessionManager(engineConfig, deps, resultService)
	examService := service.NewExamService(itemRepo, examRepo)
	jobService := service.NewGenerationJobService(examService, cacheRepo)
	calibrationService := service.NewCalibrationService(itemRepo, sessionRepo, calibrationRepo, engineConfig)

	// Инициализируем обработчики
	examHandler := handler.NewExamHandler(examService, jobService, itemRepo)
	itemHandler := handler.NewItemHandler(itemRepo)
	sessionHandler := handler.NewSessionHandler(sessionManager)
	calibrationHandler := handler.NewCalibrationHandler(calibrationService)
	wsHandler := handler.NewWSHandler(jobService)

	// Инициализируем middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		// Production: не доверять прокси-заголовкам
		// Если используете load balancer, замените nil на []string{"IP_БАЛАНСИРОВЩИКА"}
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS (список синхронизирован с CheckOrigin в ws_handler.go)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	api.Use(rateLimiter.Limit(middleware.DefaultAPIRateLimitConfig()))
	{
		// Генерация экзаменов
		exams := api.Group("/exams")
		{
			// Генерация дорогая: строгий отдельный лимит
			generate := exams.Group("")
			generate.Use(rateLimiter.Limit(middleware.GenerationRateLimitConfig()))
			{
				generate.POST("", examHandler.GenerateExam)
				generate.POST("/jobs", examHandler.StartGenerationJob)
			}

			exams.GET("", examHandler.ListExams)
			exams.GET("/jobs/:id", examHandler.GetGenerationJob)
			exams.DELETE("/jobs/:id", examHandler.CancelGenerationJob)
			exams.GET("/:id", examHandler.GetExam)
			exams.DELETE("/:id", examHandler.DeleteExam)
		}

		// Пул вопросов
		items := api.Group("/items")
		{
			items.POST("", itemHandler.CreateItem)
			items.POST("/batch", itemHandler.CreateItemBatch)
			items.GET("/:id", itemHandler.GetItem)
			items.PUT("/:id", itemHandler.UpdateItem)
			items.DELETE("/:id", itemHandler.DeleteItem)
		}

		// Статистика пула вопросов
		api.GET("/pool/stats", examHandler.GetPoolStats)

		// Сессии экзаменов
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.GET("/:id/responses", sessionHandler.GetSessionResponses)
			sessions.GET("/:id/next-question", sessionHandler.GetNextQuestion)
			sessions.POST("/:id/responses", sessionHandler.SubmitResponse)
			sessions.POST("/:id/complete", sessionHandler.CompleteExam)
			sessions.POST("/:id/abandon", sessionHandler.AbandonSession)
		}

		// Калибровка параметров вопросов
		calibrations := api.Group("/calibrations")
		{
			calibrations.POST("", calibrationHandler.RunCalibration)
			calibrations.GET("", calibrationHandler.ListCalibrations)
			calibrations.GET("/:id", calibrationHandler.GetCalibration)
			calibrations.GET("/:id/export", calibrationHandler.ExportCalibration)
			calibrations.POST("/:id/apply", calibrationHandler.ApplyCalibration)
		}
	}

	// WebSocket: прогресс задач генерации
	router.GET("/ws/generation-jobs/:id", wsHandler.StreamGenerationJob)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
