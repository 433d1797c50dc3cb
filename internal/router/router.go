package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable per-caller rate limiting.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", handler.HeaderSessionToken}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	if cfg.MetricsEnabled {
		router.Use(metrics.Middleware())
		router.GET("/metrics", metrics.Handler())
	}

	router.GET("/health", handlers.System.Health)

	// Attempt state changes every few seconds; nothing below may be cached.
	api := router.Group("/api/v1")
	api.Use(middleware.Brotli(), middleware.NoStore())

	// ─── 1. Student Group (JWT, Rate Limited) ──────────────────────────
	studentAPI := api.Group("/student")
	studentAPI.Use(middleware.RequireRole(auth, service.RoleStudent))
	if limiter != nil {
		studentAPI.Use(limiter.Middleware())
	}
	{
		studentAPI.GET("/exams/:exam_id", handlers.StudentPortal.GetExamInfo)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.StudentPortal.StartAttempt)

		studentAPI.GET("/attempts", handlers.StudentPortal.ListAttempts)
		studentAPI.GET("/attempts/:attempt_id", handlers.StudentPortal.TakeAttempt)
		studentAPI.POST("/attempts/:attempt_id/heartbeat", handlers.StudentPortal.Heartbeat)
		studentAPI.PUT("/attempts/:attempt_id/progress", handlers.StudentPortal.SaveProgress)
		studentAPI.POST("/attempts/:attempt_id/violations", handlers.StudentPortal.ReportViolation)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.StudentPortal.SubmitAttempt)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.StudentPortal.GetResult)
	}

	// ─── 2. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := api.Group("/teacher")
	teacherAPI.Use(middleware.RequireRole(auth, service.RoleTeacher))
	{
		teacherAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
		teacherAPI.POST("/exams/:exam_id/refresh-cache", handlers.Exam.RefreshExamCache)
		teacherAPI.GET("/attempts/:attempt_id/result", handlers.Exam.GetAttemptResult)
		teacherAPI.POST("/attempts/:attempt_id/grade", handlers.Exam.GradeAttempt)
	}

	// ─── 3. WebSocket Group (Student JWT via ?token=) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireRole(auth, service.RoleStudent))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
