package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/speaklab-backend/internal/handlers"
	"github.com/yungbote/speaklab-backend/internal/middleware"
	"github.com/yungbote/speaklab-backend/internal/utils"
)

type RouterConfig struct {
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	HistoryHandler     *handlers.HistoryHandler
	ModelAnswerHandler *handlers.ModelAnswerHandler
	PracticeHandler    *handlers.PracticeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("speaklab-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// Dashboard
	protected.GET("/dashboard", cfg.HistoryHandler.Dashboard)

	api := protected.Group("/api")
	// Provider key
	api.GET("/validate-key", cfg.PracticeHandler.ValidateKey)
	// History
	api.GET("/user-history", cfg.HistoryHandler.List)
	api.POST("/user-history", cfg.HistoryHandler.Save)
	// Model answers
	api.GET("/model-answers", cfg.ModelAnswerHandler.Search)
	api.POST("/model-answers", cfg.ModelAnswerHandler.Submit)
	api.POST("/model-answers/generate", cfg.PracticeHandler.ModelAnswer)
	// Practice sessions
	api.POST("/practice/session", cfg.PracticeHandler.StartSession)
	api.GET("/practice/session/:id/question", cfg.PracticeHandler.CurrentQuestion)
	api.POST("/practice/session/:id/recording", cfg.PracticeHandler.AttachRecording)
	api.POST("/practice/session/:id/submit", cfg.PracticeHandler.SubmitResponse)
	api.POST("/practice/session/:id/advance", cfg.PracticeHandler.Advance)
	api.POST("/practice/session/:id/complete", cfg.PracticeHandler.Complete)
	api.POST("/practice/session/:id/exit", cfg.PracticeHandler.Exit)

	return router
}

func allowedOrigins() []string {
	raw := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173", nil)
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
