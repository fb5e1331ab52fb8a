package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/journeys-backend/internal/http/handlers"
	httpMW "github.com/yungbote/journeys-backend/internal/http/middleware"
	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	AllowedOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware

	JourneyHandler    *httpH.JourneyHandler
	AssignmentHandler *httpH.AssignmentHandler
	TaskHandler       *httpH.TaskHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "journeys"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.RequestID())
	r.Use(httpMW.Observe(cfg.Log, cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Me
		if cfg.JourneyHandler != nil {
			protected.GET("/me/journeys", cfg.JourneyHandler.ListMyJourneys)
			protected.GET("/me/journeys/:journeyId", cfg.JourneyHandler.GetMyJourney)
			protected.GET("/me/xp", cfg.JourneyHandler.GetMyXP)
			protected.GET("/me/onboarding", cfg.JourneyHandler.GetMyOnboarding)
		}

		// Task completion (owner, or manager acting for them)
		if cfg.TaskHandler != nil {
			protected.POST("/assignments/:assignmentId/tasks/:taskId/complete", cfg.TaskHandler.Complete)
			protected.DELETE("/assignments/:assignmentId/tasks/:taskId/complete", cfg.TaskHandler.Uncomplete)
			protected.POST("/assignments/:assignmentId/tasks/:taskId/attachments", cfg.TaskHandler.UploadAttachment)
		}
	}

	managed := protected.Group("/")
	if cfg.AuthMiddleware != nil {
		managed.Use(cfg.AuthMiddleware.RequireRole(ctxutil.RoleManager, ctxutil.RoleAdmin))
	}
	{
		if cfg.AssignmentHandler != nil {
			managed.POST("/journeys/:journeyId/assign/:userId", cfg.AssignmentHandler.Assign)
			managed.DELETE("/journeys/:journeyId/assign/:userId", cfg.AssignmentHandler.Unassign)
			managed.POST("/users/:userId/activate", cfg.AssignmentHandler.Activate)
		}
		if cfg.JourneyHandler != nil {
			managed.GET("/users/:userId/journeys", cfg.JourneyHandler.ListUserJourneys)
			managed.GET("/users/:userId/xp", cfg.JourneyHandler.GetUserXP)
		}
	}

	return r
}
