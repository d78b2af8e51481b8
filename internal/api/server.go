// Package api provides the HTTP server for the agent gateway. It wires the
// gin engine, middleware chain, and the /agent route surface around the
// request handlers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/casaops/agentgate/internal/api/handlers"
	"github.com/casaops/agentgate/internal/api/middleware"
	"github.com/casaops/agentgate/internal/buildinfo"
	"github.com/casaops/agentgate/internal/config"
	"github.com/casaops/agentgate/internal/logging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server represents the gateway's HTTP server instance.
type Server struct {
	engine  *gin.Engine
	server  *http.Server
	handler *handlers.Handler

	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewServer creates and initializes a new gateway server instance. It sets up
// the gin engine, middleware, and routes around the given request handler.
func NewServer(cfg *config.Config, handler *handlers.Handler) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	middleware.SetMetricsEnabled(cfg.Metrics.Enabled)

	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.RequestDecompressionMiddleware())
	engine.Use(middleware.PrometheusMiddleware())

	s := &Server{
		engine:  engine,
		handler: handler,
		cfg:     cfg,
	}

	engine.Use(corsMiddleware(s.getConfig))
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	return s
}

// setupRoutes configures the API routes for the server.
func (s *Server) setupRoutes() {
	agent := s.engine.Group("/agent")
	{
		agent.GET("/agents", s.handler.ListAgents)
		agent.GET("/chats", s.handler.ListChats)
		agent.POST("/chats", s.handler.CreateChat)
		agent.GET("/chats/:chat_id", s.handler.GetChat)
		agent.POST("/chats/:chat_id", s.handler.TransitionChat)
		agent.DELETE("/chats/:chat_id", s.handler.DeleteChat)
		agent.GET("/chats/:chat_id/messages", s.handler.ListMessages)
		agent.POST("/chats/:chat_id/messages", s.handler.SendMessage)
		agent.POST("/chats/:chat_id/messages/stream", s.handler.StreamMessage)
		agent.GET("/inbox", s.handler.Inbox)
	}

	// Health check endpoint for load balancers and deployment probes
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.Commit,
			"date":    buildinfo.BuildDate,
		})
	})

	// Prometheus metrics endpoint for observability
	s.engine.GET("/metrics", middleware.MetricsHandler())

	// Root endpoint
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Agent Gateway",
			"endpoints": []string{
				"GET /agent/agents",
				"GET /agent/chats",
				"POST /agent/chats",
				"GET /agent/chats/:chat_id",
				"POST /agent/chats/:chat_id",
				"DELETE /agent/chats/:chat_id",
				"GET /agent/chats/:chat_id/messages",
				"POST /agent/chats/:chat_id/messages",
				"POST /agent/chats/:chat_id/messages/stream",
				"GET /agent/inbox",
				"GET /healthz",
			},
		})
	})
}

// Start begins listening for and serving HTTP requests.
// This method blocks until the server is stopped.
func (s *Server) Start() error {
	if s == nil || s.server == nil {
		return fmt.Errorf("failed to start HTTP server: server not initialized")
	}

	log.Debugf("Starting gateway server on %s", s.server.Addr)
	if errServe := s.server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %v", errServe)
	}

	return nil
}

// Stop gracefully shuts down the server without interrupting any active
// connections, including open event streams.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("Stopping gateway server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}

	log.Debug("Gateway server stopped")
	return nil
}

// UpdateConfig swaps the active configuration after a hot reload. Listen
// address changes still require a restart; CORS origins and the metrics
// toggle take effect immediately.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if s == nil || cfg == nil {
		return
	}
	if addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port); s.server != nil && addr != s.server.Addr {
		log.Warnf("listen address changed to %s in config; restart required to apply", addr)
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	middleware.SetMetricsEnabled(cfg.Metrics.Enabled)
}

func (s *Server) getConfig() *config.Config {
	if s == nil {
		return nil
	}
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// corsMiddleware returns a gin middleware handler that adds CORS headers to
// every response so browser frontends can call the gateway directly.
func corsMiddleware(getCfg func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := (*config.Config)(nil)
		if getCfg != nil {
			cfg = getCfg()
		}

		origin := strings.TrimSpace(c.GetHeader("Origin"))
		allowOrigins := []string{}
		if cfg != nil {
			allowOrigins = cfg.CORS.AllowOrigins
		}

		allowedOrigin := ""
		if origin != "" {
			switch {
			case len(allowOrigins) == 0:
				allowedOrigin = "*"
			case originAllowed(allowOrigins, origin):
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
			if allowedOrigin != "*" {
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowOrigins []string, origin string) bool {
	if origin == "" || len(allowOrigins) == 0 {
		return false
	}
	for _, allowed := range allowOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
