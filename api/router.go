package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/coursedl-go/api/handlers"
	"github.com/yourusername/coursedl-go/api/middleware"
	"github.com/yourusername/coursedl-go/internal/app"
	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

// RouterDeps bundles everything the HTTP surface needs
type RouterDeps struct {
	QueueMgr    *app.QueueManager
	Items       domain.ItemRepository
	Progress    *handlers.ProgressWebSocketHandler
	LogAdapter  *logger.LoggerAdapter
	LogsDir     string
	DefaultRoot string
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.LoggerWithAdapter(deps.LogAdapter))
	router.Use(middleware.RecoveryWithAdapter(deps.LogAdapter))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.QueueMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Task endpoints
		taskHandler := handlers.NewTaskHandler(deps.QueueMgr, deps.Items, deps.DefaultRoot, deps.LogAdapter.GetSingleLogger())
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.AddTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/stats", taskHandler.GetStats)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.GET("/:id/items", taskHandler.ListTaskItems)
			tasks.POST("/:id/cancel", taskHandler.CancelTask)
			tasks.POST("/:id/retry", taskHandler.RetryTask)
		}

		// Log endpoints
		logHandler := handlers.NewLogHandler(deps.LogsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	// WebSocket endpoints
	if deps.Progress != nil {
		router.GET("/ws/progress", deps.Progress.HandleWebSocket)
	}
	logWS := handlers.NewLogWebSocketHandler(deps.LogsDir, deps.LogAdapter.GetSingleLogger())
	router.GET("/ws/logs", logWS.HandleWebSocket)

	return router
}
