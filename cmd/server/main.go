package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openlms/quiz-service/internal/cache"
	"github.com/openlms/quiz-service/internal/config"
	"github.com/openlms/quiz-service/internal/events"
	"github.com/openlms/quiz-service/internal/handlers"
	"github.com/openlms/quiz-service/internal/repositories/postgres"
	"github.com/openlms/quiz-service/internal/services"
	"github.com/openlms/quiz-service/internal/utils"
	"github.com/openlms/quiz-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.IsProduction() {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogLogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.LogError(err, "Failed to connect to database")
		os.Exit(1)
	}
	if err := pkg.AutoMigrate(db); err != nil {
		logger.LogError(err, "Failed to run migrations")
		os.Exit(1)
	}

	// Redis is an optimization, not a dependency: without it every quiz
	// read goes to Postgres.
	var cacheService cache.CacheService
	if redisClient, err := pkg.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, running without cache", "error", err)
		cacheService = cache.NoopCache{}
	} else {
		defer redisClient.Close()
		cacheService = cache.NewRedisCache(redisClient, logger)
	}

	var publisher events.EventPublisher
	if cfg.IsProduction() {
		kafkaPublisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: cfg.KafkaBrokers,
			TopicName:    cfg.NotificationTopic,
			Logger:       slogLogger,
		})
		if err != nil {
			logger.LogError(err, "Failed to create Kafka publisher")
			os.Exit(1)
		}
		publisher = kafkaPublisher
	} else {
		publisher = events.NewMockEventPublisher(slogLogger)
	}
	defer publisher.Close()

	repo := postgres.New(db)
	validator := utils.NewValidator()
	shuffle := services.NewShuffleEngine()

	courseService := services.NewCourseService(repo)
	quizService := services.NewQuizService(repo, courseService, cacheService, publisher, slogLogger, validator)
	questionService := services.NewQuestionService(repo, courseService, slogLogger, validator)
	attemptService := services.NewAttemptService(repo, courseService, publisher, shuffle, slogLogger, validator)
	exportService := services.NewExportService(repo, courseService, slogLogger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(quizService, questionService, attemptService, exportService, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("quiz-service listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(err, "Server failed")
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(err, "Graceful shutdown failed")
	}
}
