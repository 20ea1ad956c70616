package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"schemamigration/pkg/tasks"
)

// submitTask reads the raw JSON body and hands it to the task facade.
// Parameter validation happens in the per-kind factories, so handlers stay
// thin.
func (s *Server) submitTask(c *gin.Context, kind tasks.Kind) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	snap, err := s.service.Submit(kind, json.RawMessage(raw))
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrUnknownKind), errors.Is(err, tasks.ErrInvalidParams):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, snap)
}

// StartComparison handles POST /api/compare
// @Summary Compare two registries
// @Description Start an asynchronous comparison between two schema registries
// @Tags operations
// @Accept json
// @Produce json
// @Success 202 {object} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/compare [post]
func (s *Server) StartComparison(c *gin.Context) {
	s.submitTask(c, tasks.KindComparison)
}

// StartMigration handles POST /api/migrate
// @Summary Migrate selected subjects
// @Description Start an asynchronous migration of an explicit subject list
// @Tags operations
// @Accept json
// @Produce json
// @Success 202 {object} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/migrate [post]
func (s *Server) StartMigration(c *gin.Context) {
	s.submitTask(c, tasks.KindSchemaMigration)
}

// StartContextMigration handles POST /api/migrate/context
// @Summary Migrate a whole context
// @Description Start an asynchronous migration of every subject in a context
// @Tags operations
// @Accept json
// @Produce json
// @Success 202 {object} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/migrate/context [post]
func (s *Server) StartContextMigration(c *gin.Context) {
	s.submitTask(c, tasks.KindContextMigration)
}

// StartCleanup handles POST /api/cleanup
// @Summary Clean up registry contexts
// @Description Start an asynchronous batch deletion across registry contexts
// @Tags operations
// @Accept json
// @Produce json
// @Success 202 {object} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/cleanup [post]
func (s *Server) StartCleanup(c *gin.Context) {
	s.submitTask(c, tasks.KindBatchCleanup)
}

// StartSync handles POST /api/sync
// @Summary Run a one-shot sync
// @Description Start a compare-and-transfer pass between two registries
// @Tags operations
// @Accept json
// @Produce json
// @Success 202 {object} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/sync [post]
func (s *Server) StartSync(c *gin.Context) {
	s.submitTask(c, tasks.KindSync)
}

// GetTask handles GET /api/tasks/:taskID
// @Summary Get task status
// @Description Get the current snapshot of a task
// @Tags tasks
// @Produce json
// @Param taskID path string true "Task ID"
// @Success 200 {object} tasks.Snapshot
// @Failure 404 {object} gin.H
// @Router /api/tasks/{taskID} [get]
func (s *Server) GetTask(c *gin.Context) {
	snap, err := s.service.Get(c.Param("taskID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListTasks handles GET /api/tasks
// @Summary List tasks
// @Description List all task snapshots, optionally filtered by kind
// @Tags tasks
// @Produce json
// @Param kind query string false "Task kind filter"
// @Success 200 {array} tasks.Snapshot
// @Failure 400 {object} gin.H
// @Router /api/tasks [get]
func (s *Server) ListTasks(c *gin.Context) {
	snaps, err := s.service.List(c.Query("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snaps == nil {
		snaps = []tasks.Snapshot{}
	}
	c.JSON(http.StatusOK, snaps)
}

// CancelTask handles DELETE /api/tasks/:taskID
// @Summary Cancel a task
// @Description Request cancellation of a pending or running task
// @Tags tasks
// @Produce json
// @Param taskID path string true "Task ID"
// @Success 200 {object} tasks.Snapshot
// @Failure 404 {object} gin.H
// @Router /api/tasks/{taskID} [delete]
func (s *Server) CancelTask(c *gin.Context) {
	snap, err := s.service.Cancel(c.Param("taskID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListRegistries handles GET /api/registries
// @Summary List configured registries
// @Description List the names of registries this server can operate on
// @Tags registries
// @Produce json
// @Success 200 {array} string
// @Router /api/registries [get]
func (s *Server) ListRegistries(c *gin.Context) {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, names)
}

// TestConnectionRequest names the registry to check.
type TestConnectionRequest struct {
	Registry string `json:"registry" binding:"required"`
}

// TestConnection handles POST /api/test-connection
// @Summary Test registry connectivity
// @Description Check that a configured registry answers a subject listing
// @Tags registries
// @Accept json
// @Produce json
// @Param request body TestConnectionRequest true "Connection test parameters"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Failure 502 {object} gin.H
// @Router /api/test-connection [post]
func (s *Server) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, ok := s.clients[req.Registry]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown registry: " + req.Registry})
		return
	}

	subjects, err := client.ListSubjects(c.Request.Context(), "")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"registry": req.Registry,
		"subjects": len(subjects),
	})
}

// HealthCheck handles GET /health
// @Summary Health check
// @Description Check if the API is running
// @Tags system
// @Produce json
// @Success 200 {object} gin.H
// @Router /health [get]
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"pool_size": s.service.PoolSize(),
		"time":      time.Now(),
	})
}
