package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"document-insights-backend/internal/telemetry"
	"document-insights-backend/models"
	"document-insights-backend/services"
	"document-insights-backend/utils"
)

// SetupAskRoutes registers job submission and status endpoints.
func SetupAskRoutes(router *gin.Engine, store *services.JobStore, metrics *telemetry.Metrics) {
	router.POST("/ask", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Query must be between 1 and 1000 characters", gin.H{"error": err.Error()})
			return
		}

		if strings.TrimSpace(req.Query) == "" {
			utils.RespondWithBadRequest(c, "Query cannot be empty", nil)
			return
		}

		job := store.Create(req.Query)
		if metrics != nil {
			metrics.JobsCreated.Add(c.Request.Context(), 1)
		}

		c.JSON(http.StatusOK, models.JobResponse{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Job created successfully",
		})
	})

	router.GET("/ask/:job_id", func(c *gin.Context) {
		job, ok := store.Get(c.Param("job_id"))
		if !ok {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}

		c.JSON(http.StatusOK, models.JobStatusResponse{
			JobID:     job.ID,
			Status:    job.Status,
			Query:     job.Query,
			CreatedAt: job.CreatedAt,
			Error:     job.Error,
		})
	})
}
