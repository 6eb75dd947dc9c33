package ui

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

// Server exposes crawl progress and the current ranking over HTTP
type Server struct {
	Logger      log.Logger
	Config      *cfg.Config
	Checkpoints *checkpoint.Store
	Users       *store.UserStore
	server      *http.Server
	port        int
}

// NewServer creates a new status server
func NewServer(logger log.Logger, config *cfg.Config, checkpoints *checkpoint.Store, users *store.UserStore, port int) (*Server, error) {
	return &Server{
		Logger:      logger,
		Config:      config,
		Checkpoints: checkpoints,
		Users:       users,
		port:        port,
	}, nil
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	handler, err := NewHandler(s.Logger, s.Config, s.Checkpoints, s.Users)
	if err != nil {
		return fmt.Errorf("failed to create status handler: %w", err)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info(context.Background(), "Starting status server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.Logger.Info(ctx, "Shutting down status server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
