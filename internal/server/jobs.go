package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunJob triggers one scheduler job synchronously and reports how many
// records it transitioned.
func (s *Server) RunJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrSchedulerAbsent)
		return
	}
	job := c.Param("job")
	processed, err := s.scheduler.RunJob(c.Request.Context(), job)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("job triggered", zap.String("job", job), zap.Int("processed", processed))
	c.JSON(http.StatusOK, gin.H{"job": job, "processed": processed})
}
