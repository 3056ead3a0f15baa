// Package feedback records user ratings of answers. Recording never fails a
// turn: the Recorder turns every outcome into a status line.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
)

// ErrInvalidRating rejects ratings other than positive or negative.
var ErrInvalidRating = errors.New("rating must be positive or negative")

// Rating is the user's verdict on an answer.
type Rating string

const (
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
)

// ParseRating normalises s into a Rating.
func ParseRating(s string) (Rating, error) {
	switch Rating(strings.ToLower(strings.TrimSpace(s))) {
	case RatingPositive:
		return RatingPositive, nil
	case RatingNegative:
		return RatingNegative, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// Entry is one persisted feedback record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Rating    Rating    `json:"rating"`
}

// Sink persists entries append-only.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Recorder validates feedback and hands it to a Sink.
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the recorder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder creates a recorder writing to sink.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("feedback")
	}
	return r
}

// Record validates and persists one entry.
func (r *Recorder) Record(ctx context.Context, question, answer, rating string) (Entry, error) {
	parsed, err := ParseRating(rating)
	if err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return Entry{}, fmt.Errorf("%w: feedback needs both a question and an answer", apperrors.ErrInvalidInput)
	}
	if r.sink == nil {
		return Entry{}, fmt.Errorf("%w: no feedback sink configured", apperrors.ErrUnavailable)
	}
	entry := Entry{
		Timestamp: r.now().UTC(),
		Question:  question,
		Answer:    answer,
		Rating:    parsed,
	}
	if err := r.sink.Write(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Log records feedback and returns the status line shown to the user.
func (r *Recorder) Log(ctx context.Context, question, answer, rating string) string {
	entry, err := r.Record(ctx, question, answer, rating)
	if err != nil {
		r.logger.Warn("feedback not recorded", "error", err)
		return fmt.Sprintf("Failed to log feedback: %v", err)
	}
	r.logger.Info("feedback recorded", "rating", entry.Rating)
	return fmt.Sprintf("Feedback logged successfully: %s", entry.Rating)
}
