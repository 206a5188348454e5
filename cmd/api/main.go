// @title Exam Engine API
// @version 1.0
// @description Exam content, attempt lifecycle and scoring API.
// @host localhost:8090
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize.
package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"exam-engine/internal/adapter"
	"exam-engine/internal/adapter/grader"
	"exam-engine/internal/adapter/queue"
	"exam-engine/internal/cache"
	"exam-engine/internal/config"
	"exam-engine/internal/database"
	"exam-engine/internal/domain"
	"exam-engine/internal/handler"
	"exam-engine/internal/logger"
	"exam-engine/internal/middleware"
	"exam-engine/internal/repository"
	"exam-engine/internal/repository/memory"
	"exam-engine/internal/service"
	"exam-engine/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type repositories struct {
	exams     domain.ExamRepository
	attempts  domain.AttemptRepository
	answers   domain.AnswerRepository
	txManager domain.TransactionManager
	close     func() error
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.DB.Driver == "memory" {
		logger.Get().Warn("Using the in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &repositories{exams: store, attempts: store, answers: store, txManager: store, close: func() error { return nil }}, nil
	}

	db, err := database.NewSQLXOracleDB(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	applied, err := database.RunMigrations(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Get().Info("Database schema is up to date", zap.Int("applied", applied))

	return &repositories{
		exams:     repository.NewExamRepository(db),
		attempts:  repository.NewAttemptRepository(db),
		answers:   repository.NewAnswerRepository(db),
		txManager: repository.NewTransactionManagerAdapter(db),
		close:     db.Close,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to open repositories", zap.Error(err))
	}
	defer repos.close()

	// Redis is optional; without it exam trees are read from the database every time.
	var examCache domain.Cache
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, exam cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			examCache = adapter.NewRedisCacheAdapter(redisClient)
			appLogger.Info("RedisCacheAdapter initialized")
		}
	}
	trees := service.NewExamTreeReader(repos.exams, examCache, cfg.Cache.ExamTTL)
	validator := validation.NewValidator()

	aiGrader, err := grader.New(cfg.Grading)
	if err != nil {
		appLogger.Fatal("Failed to create AI grader", zap.Error(err), zap.String("provider", cfg.Grading.Provider))
	}

	pubsub, err := queue.NewPubSub(cfg.Queue, queue.NewZapLoggerAdapter(appLogger))
	if err != nil {
		appLogger.Fatal("Failed to create grading queue", zap.Error(err), zap.String("driver", cfg.Queue.Driver))
	}
	defer pubsub.Close()

	// Subscribe before serving so that no job published by a request is lost.
	messages, err := pubsub.Subscriber.Subscribe(ctx, cfg.Queue.Topic)
	if err != nil {
		appLogger.Fatal("Failed to subscribe to grading jobs", zap.Error(err))
	}
	gradingQueue := queue.NewGradingQueue(pubsub.Publisher, cfg.Queue.Topic)

	examService := service.NewExamService(repos.exams, repos.attempts, trees, repos.txManager, validator)
	attemptService := service.NewAttemptService(repos.attempts, repos.answers, trees, repos.txManager, gradingQueue, validator)
	coordinator := service.NewGradingCoordinator(repos.attempts, repos.answers, trees, repos.txManager, aiGrader,
		service.WithConcurrency(cfg.Grading.Concurrency),
		service.WithPassThreshold(cfg.Grading.PassThreshold),
	)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := coordinator.Run(ctx, messages); err != nil {
			appLogger.Error("Grading coordinator exited", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  20 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		MaxAge:       300,
	}))

	handler.RegisterRoutes(app, handler.Handlers{
		Exams:    handler.NewExamHandler(examService),
		Attempts: handler.NewAttemptHandler(attemptService),
		Admin:    handler.NewAdminHandler(examService, attemptService),
	}, middleware.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Server.Port), zap.String("env", cfg.Logger.Env))
		serverErr <- app.Listen(":" + strconv.Itoa(cfg.Server.Port))
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("Server stopped", zap.Error(err))
		}
		stop()
	}

	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Grading coordinator did not stop in time")
	}
	appLogger.Info("Server exited gracefully")
}
