// Package httpapi exposes the script compiler and the job supervisor over
// HTTP and websocket.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/service"
)

type Server struct {
	app          *fiber.App
	svc          *service.Service
	sessions     *service.Sessions
	pollInterval time.Duration
	now          func() time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	accessLog io.Writer
	now       func() time.Time
}

// WithAccessLog writes one line per request to w.
func WithAccessLog(w io.Writer) Option {
	return func(o *options) {
		o.accessLog = w
	}
}

// WithClock fixes the generation date of downloaded scripts.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(cfg model.Server, svc *service.Service, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	s := &Server{
		svc:          svc,
		sessions:     service.NewSessions(svc.Supervisor),
		pollInterval: cfg.PollInterval,
		now:          o.now,
		closing:      make(chan struct{}),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "mdsetup",
		ErrorHandler:          ErrorHandler,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	if o.accessLog != nil {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
			Output: o.accessLog,
		}))
	}
	s.routes(cfg.JWTSecret)
	return s
}

func (s *Server) routes(secret string) {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	chain := []fiber.Handler{}
	if secret != "" {
		chain = append(chain, Authenticate(secret))
	}
	chain = append(chain, Session())

	api := s.app.Group("/api", chain...)
	api.Post("/script", s.Script)
	api.Post("/package", s.Package)

	jobs := api.Group("/jobs")
	jobs.Post("/", s.StartJob)
	jobs.Get("/output", s.Output)
	jobs.Post("/stop", s.Stop)
	jobs.Get("/:id", s.Status)

	ws := s.app.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Use(chain...)
	ws.Get("/jobs/output", websocket.New(s.streamOutput))
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Sessions returns the supervisors of the callers served so far.
func (s *Server) Sessions() *service.Sessions {
	return s.sessions
}

func (s *Server) Listen(addr string) error {
	slog.Info("server starting", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown ends the output streams, stops accepting requests and then
// cancels the jobs of all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	err := s.app.ShutdownWithContext(ctx)
	s.sessions.Close(ctx)
	return err
}
