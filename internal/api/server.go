// Package api serves assistant status, positions, manual cycle triggers and
// metrics over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/risk"
	"crypto-trading-assistant/internal/types"
)

// Runner is the scheduling surface the API needs.
type Runner interface {
	Trigger(ctx context.Context, symbol string) (*types.CycleResult, error)
	Last() []types.CycleResult
	Symbols() []string
}

type PositionLister interface {
	List() []types.Position
}

type DailyStats interface {
	Snapshot(now time.Time) risk.DailyState
}

type Config struct {
	Addr           string
	Mode           string // DRY_RUN or LIVE, reported in /api/status
	AllowedOrigins []string
	Debug          bool
}

type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server

	runner    Runner
	positions PositionLister
	daily     DailyStats
	metrics   http.Handler
	started   time.Time
	now       func() time.Time
}

// NewServer wires the routes. metrics may be nil, in which case /metrics is
// not served.
func NewServer(cfg Config, runner Runner, positions PositionLister, daily DailyStats, metrics http.Handler) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:       cfg,
		router:    router,
		runner:    runner,
		positions: positions,
		daily:     daily,
		metrics:   metrics,
		started:   time.Now(),
		now:       time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/positions", s.handlePositions)
	api.POST("/cycles/:symbol", s.handleTrigger)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "Starting HTTP server", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logger.Info(ctx, "Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
