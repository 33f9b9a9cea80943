package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tdimeji/mmsgate/internal/config"
)

// Server hosts the REST API.
type Server struct {
	config     config.APIConfig
	handler    *Handler
	httpServer *http.Server
	stopOnce   sync.Once
}

func NewServer(cfg config.APIConfig, h *Handler) *Server {
	return &Server{config: cfg, handler: h}
}

// ListenAndServe starts the API server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer != nil {
		return errors.New("api server already started")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, s.handler)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	slog.Info("Starting MMS API server", slog.String("address", s.config.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("API server ListenAndServe error", slog.Any("error", err))
		return err
	}
	slog.Info("MMS API server stopped.")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.httpServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API server shutdown error", slog.Any("error", err))
		}
	})
}
