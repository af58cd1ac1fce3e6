package echo

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		s.mu.Lock()
		listening := s.ln != nil
		s.mu.Unlock()
		status := http.StatusOK
		if !listening {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   listening,
			"variant": s.cfg.Variant,
			"service": s.cfg.ID,
		})
	})

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions()})
	})
}
