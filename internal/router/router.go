package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/handler"
	"github.com/olympiad/exam-portal/internal/metrics"
	"github.com/olympiad/exam-portal/internal/middleware"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/olympiad/exam-portal/internal/service"
)

// questionsMaxAge is how long a browser may reuse the question list.
const questionsMaxAge = 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so every response, including errors, carries metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Metrics())
	router.Use(middleware.Brotli())

	// ─── Ops ───────────────────────────────────────────────────────────
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", authLimiter.Middleware(), handlers.Auth.StudentLogin)

		studentAuth := auth.Group("/student")
		studentAuth.Use(
			middleware.RequireStudentJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
		)
		studentAuth.POST("/logout", handlers.Auth.StudentLogout)
		studentAuth.GET("/me", handlers.Auth.GetStudentProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.Exam.ListExams)
		studentAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		studentAPI.GET("/exams/:exam_id/questions", middleware.CacheControl(questionsMaxAge), handlers.Exam.GetQuestions)

		studentAPI.GET("/exams/:exam_id/progress", handlers.Attempt.GetProgress)
		studentAPI.PUT("/exams/:exam_id/progress", handlers.Attempt.RecordProgress)
		studentAPI.GET("/exams/:exam_id/attempts", handlers.Attempt.ListAttempts)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.RecordAttempt)
		studentAPI.POST("/exams/:exam_id/submit", handlers.Attempt.Submit)
		studentAPI.POST("/exams/:exam_id/submit/beacon", handlers.Attempt.SubmitBeacon)

		studentAPI.GET("/results/:result_id", handlers.Attempt.GetResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/exams/:exam_id/attempt", handlers.WS.AttemptStream)
	}

	return router
}
