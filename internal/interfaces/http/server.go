// Package http provides the HTTP adapter for the approval services.
// It translates requests to application service calls and nothing more.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records requests and serves the scrape endpoint
type Metrics interface {
	RecordRequest(method, path string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxReceiptBytes int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxReceiptBytes: service.DefaultMaxReceiptBytes,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	rules      service.RuleService
	expenses   service.ExpenseService
	auth       Authenticator
	metrics    Metrics
	logger     Logger
}

// NewServer creates a new HTTP server with the given services; metrics may be nil
func NewServer(
	config ServerConfig,
	rules service.RuleService,
	expenses service.ExpenseService,
	auth Authenticator,
	metrics Metrics,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// multipart bodies beyond this spill to temp files
	router.MaxMultipartMemory = config.MaxReceiptBytes + 1<<20

	server := &Server{
		config:   config,
		router:   router,
		rules:    rules,
		expenses: expenses,
		auth:     auth,
		metrics:  metrics,
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
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware())
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.rules, s.expenses, s.config.MaxReceiptBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api", s.authMiddleware())
	{
		rules := api.Group("/approval-rules", requireRole(entity.RoleAdmin))
		rules.POST("", handlers.CreateRule)
		rules.GET("", handlers.ListRules)
		rules.GET("/:id", handlers.GetRule)
		rules.PUT("/:id", handlers.UpdateRule)
		rules.DELETE("/:id", handlers.DeleteRule)

		approvers := requireRole(entity.RoleManager, entity.RoleAdmin)
		expenses := api.Group("/expenses")
		expenses.POST("", handlers.SubmitExpense)
		expenses.GET("", handlers.ListMyExpenses)
		expenses.GET("/export", handlers.ExportMyExpenses)
		expenses.GET("/pending-approval", approvers, handlers.ListPending)
		expenses.GET("/:id", handlers.GetExpense)
		expenses.GET("/:id/history", handlers.GetHistory)
		expenses.PUT("/:id/approve", approvers, handlers.ActOnExpense)

		api.GET("/receipts/:expenseId", handlers.GetReceipt)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails
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
