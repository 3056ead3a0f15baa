package httpapi

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/feedback"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/rag/document"
	"github.com/sweetpotato0/adaptive-rag/session"
)

type errorResponse struct {
	Error    string `json:"error"`
	ThreadID string `json:"thread_id,omitempty"`
}

type turnRequest struct {
	Question       string `json:"question"`
	ThreadID       string `json:"thread_id"`
	RecursionLimit int    `json:"recursion_limit"`
}

type documentView struct {
	Title   string          `json:"title,omitempty"`
	Source  string          `json:"source"`
	Origin  document.Origin `json:"origin"`
	Content string          `json:"content"`
}

type turnResponse struct {
	ThreadID          string           `json:"thread_id"`
	Question          string           `json:"question"`
	RewrittenQuestion string           `json:"rewritten_question,omitempty"`
	Answer            string           `json:"answer"`
	Verdict           adaptive.Verdict `json:"verdict"`
	Grounded          bool             `json:"grounded"`
	Route             adaptive.Route   `json:"route"`
	RetryCount        int              `json:"retry_count"`
	WebSearch         bool             `json:"web_search"`
	Sources           []string         `json:"sources"`
	Documents         []documentView   `json:"documents"`
}

type sessionResponse struct {
	ThreadID string `json:"thread_id"`
}

type feedbackRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Rating   string `json:"rating"`
}

type feedbackResponse struct {
	Status string         `json:"status"`
	Entry  feedback.Entry `json:"entry"`
}

func newTurnResponse(res *adaptive.TurnResult) turnResponse {
	docs := make([]documentView, 0, len(res.Documents))
	for _, d := range res.Documents {
		docs = append(docs, documentView{Title: d.Title, Source: d.Source, Origin: d.Origin, Content: d.Content})
	}
	sources := res.Sources()
	if sources == nil {
		sources = []string{}
	}
	return turnResponse{
		ThreadID:          res.ThreadID,
		Question:          res.Question,
		RewrittenQuestion: res.RewrittenQuestion,
		Answer:            res.Answer,
		Verdict:           res.Verdict,
		Grounded:          res.Grounded,
		Route:             res.Route,
		RetryCount:        res.RetryCount,
		WebSearch:         res.WebSearchTriggered,
		Sources:           sources,
		Documents:         docs,
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) createTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.engine.RunTurn(ctx, adaptive.TurnRequest{
		Question:       req.Question,
		ThreadID:       req.ThreadID,
		RecursionLimit: req.RecursionLimit,
	})
	if err != nil {
		status := turnStatus(err)
		if status >= fiber.StatusInternalServerError {
			s.logger.Error("turn failed", "thread_id", req.ThreadID, "error", err)
		}
		return c.Status(status).JSON(errorResponse{Error: adaptive.Describe(err), ThreadID: req.ThreadID})
	}
	return c.JSON(newTurnResponse(res))
}

func turnStatus(err error) int {
	switch {
	case stdErrors.Is(err, adaptive.ErrEmptyQuestion):
		return fiber.StatusBadRequest
	case stdErrors.Is(err, adaptive.ErrRecursionLimit):
		return fiber.StatusUnprocessableEntity
	case stdErrors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case stdErrors.Is(err, context.Canceled):
		return fiber.StatusRequestTimeout
	case stdErrors.Is(err, adaptive.ErrGeneration):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) createSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{ThreadID: session.NewThreadID()})
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	next, err := s.sessions.Reset(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(sessionResponse{ThreadID: next})
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs, err := s.sessions.Memory(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}
	return c.JSON(fiber.Map{"thread_id": c.Params("id"), "messages": msgs})
}

func (s *Server) listHistory(c *fiber.Ctx) error {
	history, err := s.sessions.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return storeError(err)
	}
	if history == nil {
		history = []session.Exchange{}
	}
	return c.JSON(fiber.Map{"thread_id": c.Params("id"), "history": history})
}

func (s *Server) createFeedback(c *fiber.Ctx) error {
	if s.feedback == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "feedback is not configured")
	}
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	entry, err := s.feedback.Record(c.UserContext(), req.Question, req.Answer, req.Rating)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case stdErrors.Is(err, feedback.ErrInvalidRating), stdErrors.Is(err, errors.ErrInvalidInput):
			status = fiber.StatusBadRequest
		case stdErrors.Is(err, errors.ErrUnavailable):
			status = fiber.StatusServiceUnavailable
		}
		return fiber.NewError(status, fmt.Sprintf("Failed to log feedback: %v", err))
	}
	return c.Status(fiber.StatusCreated).JSON(feedbackResponse{
		Status: fmt.Sprintf("Feedback logged successfully: %s", entry.Rating),
		Entry:  entry,
	})
}

func storeError(err error) error {
	switch {
	case stdErrors.Is(err, errors.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case stdErrors.Is(err, errors.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case stdErrors.Is(err, errors.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}
