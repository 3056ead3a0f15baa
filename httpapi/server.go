// Package httpapi exposes the adaptive workflow over HTTP with fiber.
package httpapi

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sweetpotato0/adaptive-rag/feedback"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/session"
)

// TurnRunner runs one question through the workflow.
type TurnRunner interface {
	RunTurn(ctx context.Context, req adaptive.TurnRequest) (*adaptive.TurnResult, error)
}

// SessionManager is the slice of session.Registry the API needs.
type SessionManager interface {
	Memory(ctx context.Context, threadID string) ([]*message.Message, error)
	History(ctx context.Context, threadID string) ([]session.Exchange, error)
	Reset(ctx context.Context, threadID string) (string, error)
}

// FeedbackRecorder persists a rating.
type FeedbackRecorder interface {
	Record(ctx context.Context, question, answer, rating string) (feedback.Entry, error)
}

var (
	_ TurnRunner       = (*adaptive.Engine)(nil)
	_ SessionManager   = (*session.Registry)(nil)
	_ FeedbackRecorder = (*feedback.Recorder)(nil)
)

// Server owns the fiber app.
type Server struct {
	app      *fiber.App
	engine   TurnRunner
	sessions SessionManager
	feedback FeedbackRecorder
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTurnTimeout bounds each turn request. Zero disables the bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// New wires the routes. A nil feedback recorder disables POST /v1/feedback.
func New(engine TurnRunner, sessions SessionManager, fb FeedbackRecorder, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		feedback: fb,
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("httpapi")
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "adaptive-rag",
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.registerRoutes(s.app)
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes(r fiber.Router) {
	r.Get("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.Post("/turns", s.createTurn)
	v1.Post("/sessions", s.createSession)
	v1.Delete("/sessions/:id", s.resetSession)
	v1.Get("/sessions/:id/messages", s.listMessages)
	v1.Get("/sessions/:id/history", s.listHistory)
	v1.Post("/feedback", s.createFeedback)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if stdErrors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}
