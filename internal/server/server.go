// Package server exposes the expense tracker over HTTP. Handlers stay
// thin: parse, call the service, map domain errors to status codes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/expense-tracker/internal/export"
	"github.com/joseph-ayodele/expense-tracker/internal/repository"
	"github.com/joseph-ayodele/expense-tracker/internal/service"
	"github.com/joseph-ayodele/expense-tracker/internal/session"
)

// maxUploadBytes bounds a single receipt image upload.
const maxUploadBytes = 20 << 20

type Server struct {
	engine   *gin.Engine
	expenses *service.ExpenseService
	exporter *export.Service
	sessions *session.Store
	settings repository.SettingsRepository
	logger   *slog.Logger
	addr     string
}

func New(
	addr string,
	expenses *service.ExpenseService,
	exporter *export.Service,
	sessions *session.Store,
	settings repository.SettingsRepository,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine:   engine,
		expenses: expenses,
		exporter: exporter,
		sessions: sessions,
		settings: settings,
		logger:   logger,
		addr:     addr,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/expenses/capture", s.handleCapture)
	v1.GET("/expenses", s.handleList)
	v1.GET("/expenses/:id", s.handleGet)
	v1.POST("/expenses/:id/confirm", s.handleConfirm)
	v1.PATCH("/expenses/:id", s.handleUpdate)
	v1.DELETE("/expenses/:id", s.handleDelete)

	v1.GET("/exports/expenses", s.handleExport)

	v1.POST("/sessions", s.handleCreateSession)

	v1.GET("/settings/base-currency", s.handleGetBaseCurrency)
	v1.PUT("/settings/base-currency", s.handleSetBaseCurrency)

	v1.GET("/health/extraction", s.handleExtractionHealth)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Run serves until ctx is canceled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.listen", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
