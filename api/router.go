package api

import (
	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"schemamigration/pkg/metrics"
	"schemamigration/pkg/registry"
	"schemamigration/pkg/schedule"
	"schemamigration/pkg/tasks"
)

// Server holds the HTTP layer's dependencies.
type Server struct {
	logger    *log.Logger
	service   *tasks.Service
	scheduler *schedule.Scheduler
	clients   map[string]registry.Client
}

// NewServer creates the HTTP server facade.
func NewServer(logger *log.Logger, service *tasks.Service, scheduler *schedule.Scheduler, clients map[string]registry.Client) *Server {
	return &Server{
		logger:    logger,
		service:   service,
		scheduler: scheduler,
		clients:   clients,
	}
}

// SetupRouter creates and configures the Gin router
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"} // Configure appropriately in production
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	router.Use(metrics.Middleware())

	// Health check and metrics
	router.GET("/health", s.HealthCheck)
	router.GET("/metrics", metrics.Handler())

	// API routes
	api := router.Group("/api")
	{
		api.GET("/registries", s.ListRegistries)
		api.POST("/test-connection", s.TestConnection)

		// One-shot operations
		api.POST("/compare", s.StartComparison)
		api.POST("/migrate", s.StartMigration)
		api.POST("/migrate/context", s.StartContextMigration)
		api.POST("/cleanup", s.StartCleanup)
		api.POST("/sync", s.StartSync)

		// Task inspection and cancellation
		api.GET("/tasks", s.ListTasks)
		api.GET("/tasks/:taskID", s.GetTask)
		api.DELETE("/tasks/:taskID", s.CancelTask)

		// Recurring syncs
		api.POST("/schedules", s.CreateSchedule)
		api.GET("/schedules", s.ListSchedules)
		api.GET("/schedules/stats", s.GetSchedulerStats)
		api.GET("/schedules/:id", s.GetSchedule)
		api.PUT("/schedules/:id", s.UpdateSchedule)
		api.DELETE("/schedules/:id", s.DeleteSchedule)
		api.POST("/schedules/:id/enable", s.EnableSchedule)
		api.POST("/schedules/:id/disable", s.DisableSchedule)
		api.POST("/schedules/:id/run", s.RunScheduleNow)
	}

	return router
}
