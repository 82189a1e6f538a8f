// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/editorial-workflow/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkerStatus reports the state of the background workers
type WorkerStatus interface {
	IsRunning() bool
	WorkerNames() []string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Dependencies are the services and health checks the handlers call
type Dependencies struct {
	Definitions   *service.DefinitionService
	Instances     *service.InstanceService
	Audit         *service.AuditService
	Notifications *service.NotificationService

	Workers WorkerStatus
	Ping    func(ctx context.Context) error
	Metrics http.Handler

	// RoleMapping grants extra roles to callers holding the key role
	RoleMapping map[string][]string
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(HeaderUserID),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	api.Use(IdentityMiddleware(s.deps.RoleMapping))
	{
		// Definitions
		api.GET("/definitions", handlers.ListDefinitions)
		api.POST("/definitions", handlers.CreateDefinition)
		api.GET("/definitions/:id", handlers.GetDefinition)
		api.PUT("/definitions/:id", handlers.UpdateDefinition)
		api.DELETE("/definitions/:id", handlers.DeleteDefinition)
		api.POST("/definitions/:id/states", handlers.AddState)
		api.PUT("/definitions/:id/states/:stateId", handlers.UpdateState)
		api.DELETE("/definitions/:id/states/:stateId", handlers.RemoveState)
		api.POST("/definitions/:id/transitions", handlers.AddTransition)
		api.PUT("/definitions/:id/transitions/:ruleId", handlers.UpdateTransition)
		api.DELETE("/definitions/:id/transitions/:ruleId", handlers.RemoveTransition)

		// Content workflow
		api.POST("/content/:contentId/workflow", handlers.CreateInstance)
		api.GET("/content/:contentId/workflow", handlers.GetWorkflowInstance)
		api.GET("/content/:contentId/workflow/transitions", handlers.GetAvailableTransitions)
		api.POST("/content/:contentId/workflow/transitions", handlers.PerformTransition)
		api.POST("/content/:contentId/workflow/cancel", handlers.CancelInstance)
		api.POST("/content/:contentId/workflow/hold", handlers.HoldInstance)
		api.POST("/content/:contentId/workflow/resume", handlers.ResumeInstance)
		api.GET("/instances/:id", handlers.GetInstance)

		// Reporting
		api.GET("/content/:contentId/audit", handlers.AuditHistory)
		api.GET("/content/:contentId/audit/summary", handlers.AuditSummary)
		api.GET("/content/:contentId/notifications", handlers.ContentNotifications)
		api.GET("/notifications", handlers.ListNotifications)
		api.GET("/reports/transition-frequency", handlers.TransitionFrequency)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
