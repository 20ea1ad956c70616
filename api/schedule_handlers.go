package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemamigration/pkg/schedule"
)

// ScheduleRequest represents a request to create or update a schedule
type ScheduleRequest struct {
	Name     string `json:"name" binding:"required"`
	CronExpr string `json:"cron_expr" binding:"required"`
	Source   string `json:"source" binding:"required"`
	Target   string `json:"target" binding:"required"`
	Context  string `json:"context"`
	Enabled  *bool  `json:"enabled"`
}

func (r ScheduleRequest) toSchedule(id string) *schedule.Schedule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &schedule.Schedule{
		ID:       id,
		Name:     r.Name,
		CronExpr: r.CronExpr,
		Source:   r.Source,
		Target:   r.Target,
		Context:  r.Context,
		Enabled:  enabled,
	}
}

// CreateSchedule handles POST /api/schedules
// @Summary Create a new schedule
// @Description Create a recurring sync between two registries
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body ScheduleRequest true "Schedule request"
// @Success 200 {object} schedule.Schedule
// @Failure 400 {object} gin.H
// @Router /api/schedules [post]
func (s *Server) CreateSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := s.clients[req.Source]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown registry: " + req.Source})
		return
	}
	if _, ok := s.clients[req.Target]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown registry: " + req.Target})
		return
	}

	sched, err := s.scheduler.Create(req.toSchedule(""))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sched)
}

// GetSchedule handles GET /api/schedules/:id
// @Summary Get a schedule
// @Description Get details of a specific schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} schedule.Schedule
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id} [get]
func (s *Server) GetSchedule(c *gin.Context) {
	sched, err := s.scheduler.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sched)
}

// ListSchedules handles GET /api/schedules
// @Summary List schedules
// @Description List all recurring syncs
// @Tags schedules
// @Produce json
// @Success 200 {array} schedule.Schedule
// @Router /api/schedules [get]
func (s *Server) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.List())
}

// UpdateSchedule handles PUT /api/schedules/:id
// @Summary Update a schedule
// @Description Replace a schedule's definition, keeping its run counters
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param request body ScheduleRequest true "Schedule request"
// @Success 200 {object} schedule.Schedule
// @Failure 400 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id} [put]
func (s *Server) UpdateSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := s.scheduler.Update(req.toSchedule(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sched)
}

// DeleteSchedule handles DELETE /api/schedules/:id
// @Summary Delete a schedule
// @Description Remove a schedule; in-flight tasks keep running
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id} [delete]
func (s *Server) DeleteSchedule(c *gin.Context) {
	if err := s.scheduler.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// EnableSchedule handles POST /api/schedules/:id/enable
// @Summary Enable a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id}/enable [post]
func (s *Server) EnableSchedule(c *gin.Context) {
	if err := s.scheduler.Enable(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// DisableSchedule handles POST /api/schedules/:id/disable
// @Summary Disable a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id}/disable [post]
func (s *Server) DisableSchedule(c *gin.Context) {
	if err := s.scheduler.Disable(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

// RunScheduleNow handles POST /api/schedules/:id/run
// @Summary Run a schedule immediately
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id}/run [post]
func (s *Server) RunScheduleNow(c *gin.Context) {
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// GetSchedulerStats handles GET /api/schedules/stats
// @Summary Scheduler statistics
// @Tags schedules
// @Produce json
// @Success 200 {object} schedule.Stats
// @Router /api/schedules/stats [get]
func (s *Server) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.GetStats())
}
