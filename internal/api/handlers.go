package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/engine"
	"crypto-trading-assistant/internal/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": s.now().Sub(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	last := s.runner.Last()
	if last == nil {
		last = []types.CycleResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":    s.cfg.Mode,
		"symbols": s.runner.Symbols(),
		"daily":   s.daily.Snapshot(s.now()),
		"last":    last,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.positions.List()})
}

// handleTrigger runs a cycle synchronously and returns its result.
func (s *Server) handleTrigger(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	res, err := s.runner.Trigger(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, engine.ErrCycleInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, engine.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
