package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/handler"
	"github.com/scribeworks/marathon-backend/internal/middleware"
	"github.com/scribeworks/marathon-backend/internal/response"
	"github.com/scribeworks/marathon-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	WS     *handler.WSHandler
	Report *handler.ReportHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/participant/login", handlers.Auth.ParticipantLogin)
		auth.POST("/operator/login", handlers.Auth.OperatorLogin)
	}

	// ─── 2. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(authService))
	{
		ws.GET("/marathon/stream", handlers.WS.MarathonStream)
	}

	// ─── 3. Operator Group (JWT) ───────────────────────────────────────
	operatorAPI := router.Group("/api/v1/operator")
	operatorAPI.Use(middleware.RequireOperatorJWT(authService))
	{
		operatorAPI.POST("/marathons/:id/report", handlers.Report.TriggerReport)
		operatorAPI.GET("/marathons/:id/report", handlers.Report.GetReport)
		operatorAPI.GET("/marathons/:id/report/progress", handlers.Report.ReportProgressSSE)
	}

	return router
}
