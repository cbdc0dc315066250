package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/timelinecraft/studio/internal/events"
	"github.com/timelinecraft/studio/internal/export"
	"github.com/timelinecraft/studio/internal/playback"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/refstore"
)

type Server struct {
	httpServer *http.Server
	background *Background
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Projects   *project.Manager
	Repository project.Repository
	References *refstore.Store
	Exporter   *export.Exporter
	Playback   *playback.Server
	Events     *events.Hub
	Background *Background
	StyleHint  string
	Logger     *slog.Logger
	StartTime  time.Time
	DeviceID   string
	Version    string
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Background == nil {
		cfg.Background = NewBackground(context.Background(), cfg.Logger)
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
			BaseContext:  func(net.Listener) context.Context { return cfg.Background.ctx },
		},
		background: cfg.Background,
		logger:     cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for background generation
// and compile work until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.background.Wait(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Background runs work that outlives the request that started it.
type Background struct {
	ctx    context.Context
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewBackground(ctx context.Context, logger *slog.Logger) *Background {
	return &Background{ctx: ctx, logger: logger}
}

func (b *Background) Go(name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("background task panicked", "task", name, "error", r)
			}
		}()
		fn(b.ctx)
	}()
}

// Wait blocks until every task has returned or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
