// Package http provides the HTTP adapter for the application layer.
// Handlers translate requests into service calls; the acting user comes from
// the X-Actor-Email and X-Actor-Role headers.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/indent-flow/internal/application/service"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
	"github.com/garyjia/indent-flow/internal/notification"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// DocumentReader reads generated documents back by id
type DocumentReader interface {
	Get(ctx context.Context, documentID string) (*storage.Document, error)
}

// LinkOutbox lists recently prepared notification links
type LinkOutbox interface {
	Recent(limit int) []notification.Link
}

// HealthFunc reports component health; nil means always healthy
type HealthFunc func() (bool, interface{})

// Services groups what the handlers call
type Services struct {
	Indents        service.IndentService
	PurchaseOrders service.PurchaseOrderService
	Records        service.RecordService
	Dashboard      service.DashboardService
	Documents      DocumentReader
	Links          LinkOutbox
	Health         HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
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

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.GET("/stages", h.ListStages)

	acting := api.Group("", ActorMiddleware())
	{
		// Indents
		acting.POST("/indents", h.CreateIndent)
		acting.GET("/indents", h.ListIndents)
		acting.GET("/indents/:id", h.GetIndent)
		acting.DELETE("/indents/:id", h.DeleteIndent)
		acting.POST("/indents/:id/submit", h.SubmitIndent)
		acting.POST("/indents/:id/quotes", h.AddQuotes)
		acting.POST("/indents/:id/selection", h.SelectVendor)

		// Any indent or purchase order
		acting.POST("/transitions/:id", h.Transition)

		// Grouping
		acting.GET("/grouping/preview", h.PreviewGrouping)
		acting.POST("/grouping", h.GroupItems)

		// Purchase orders
		acting.GET("/purchase-orders", h.ListPurchaseOrders)
		acting.GET("/purchase-orders/:id", h.GetPurchaseOrder)
		acting.POST("/purchase-orders/:id/place", h.PlacePurchaseOrder)
		acting.POST("/purchase-orders/:id/grn", h.GenerateGRN)
		acting.POST("/purchase-orders/:id/reject", h.RejectMaterial)
		acting.POST("/purchase-orders/:id/decision", h.DecideRejection)
		acting.POST("/purchase-orders/:id/return", h.ReturnMaterial)
		acting.POST("/purchase-orders/:id/resend", h.ResendMaterial)
		acting.GET("/purchase-orders/:id/records/:collection", h.ListRecords)

		// Records
		acting.POST("/records/:collection/:recordID/finalize", h.FinalizeRecord)

		// Work tracking
		acting.GET("/dashboard", h.Dashboard)
		acting.GET("/work", h.MyWork)
		acting.GET("/notifications/links", h.RecentLinks)
		acting.GET("/documents/:id", h.GetDocument)
	}
}

// Start starts the HTTP server and blocks until ctx is done or serving fails
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
