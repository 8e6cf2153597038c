package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/speaklab-backend/internal/cache"
	"github.com/yungbote/speaklab-backend/internal/db"
	"github.com/yungbote/speaklab-backend/internal/handlers"
	"github.com/yungbote/speaklab-backend/internal/logger"
	"github.com/yungbote/speaklab-backend/internal/middleware"
	"github.com/yungbote/speaklab-backend/internal/observability"
	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/server"
	"github.com/yungbote/speaklab-backend/internal/services"
	"github.com/yungbote/speaklab-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "speaklab-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	userHistoryRepo := repos.NewUserHistoryRepo(thePG, log)
	modelAnswerRepo := repos.NewModelAnswerRepo(thePG, log)

	// Request cache
	var requestCache cache.Cache
	switch utils.GetEnv("CACHE_BACKEND", "memory", log) {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
			Password: utils.GetEnv("REDIS_PASSWORD", "", log),
			DB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
		})
		requestCache = cache.NewRedisCache(redisClient, "speaklab")
		log.Info("Using redis request cache")
	default:
		requestCache = cache.NewMemoryCache()
		log.Info("Using in-memory request cache")
	}
	defer requestCache.Close()

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	var transcriber services.Transcriber
	if utils.GetEnv("SPEECH_PROVIDER", "openai", log) == "gcp" {
		transcriber, err = services.NewGCPTranscriber(log)
		if err != nil {
			log.Error("Could not init GCP transcriber", "error", err)
			os.Exit(1)
		}
	}
	orchestratorService := services.NewOrchestratorService(log, openaiClient, transcriber, requestCache)
	sessionService := services.NewSessionService(log, orchestratorService)
	authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	historyService := services.NewHistoryService(thePG, log, userHistoryRepo)
	modelAnswerService := services.NewModelAnswerService(thePG, log, modelAnswerRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	historyHandler := handlers.NewHistoryHandler(historyService)
	modelAnswerHandler := handlers.NewModelAnswerHandler(modelAnswerService)
	practiceHandler := handlers.NewPracticeHandler(sessionService, orchestratorService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		HistoryHandler:     historyHandler,
		ModelAnswerHandler: modelAnswerHandler,
		PracticeHandler:    practiceHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
