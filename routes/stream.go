package routes

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-insights-backend/models"
	"document-insights-backend/services"
	"document-insights-backend/utils"
)

// SetupStreamRoutes registers the SSE streaming endpoint plus the
// administrative job list/delete conveniences.
func SetupStreamRoutes(router *gin.Engine, store *services.JobStore, orch *services.Orchestrator) {
	router.GET("/stream/:job_id", func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		// The request context is cancelled when the client disconnects; the
		// orchestrator stops emitting and closes the channel.
		events := orch.Run(c.Request.Context(), c.Param("job_id"))

		c.Stream(func(w io.Writer) bool {
			event, ok := <-events
			if !ok {
				return false
			}
			writeSSE(c, event)
			return true
		})
	})

	router.GET("/jobs", func(c *gin.Context) {
		jobs := store.List()
		c.JSON(http.StatusOK, gin.H{
			"jobs":  jobs,
			"total": len(jobs),
		})
	})

	router.DELETE("/jobs/:job_id", func(c *gin.Context) {
		jobID := c.Param("job_id")
		if !store.Delete(jobID) {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Deleted job " + jobID})
	})
}

// writeSSE encodes one event per the wire contract: text fragments go out as
// JSON-encoded strings, end/error data as plain strings, everything else as a
// JSON object.
func writeSSE(c *gin.Context, event models.StreamEvent) {
	if event.Event == models.EventText {
		if fragment, ok := event.Data.(string); ok {
			encoded, err := json.Marshal(fragment)
			if err != nil {
				return
			}
			c.SSEvent(string(event.Event), string(encoded))
			return
		}
	}
	c.SSEvent(string(event.Event), event.Data)
}
