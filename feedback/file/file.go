// Package file writes feedback as JSON lines to a size-rotated log file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sweetpotato0/adaptive-rag/feedback"
)

// DefaultPath is where feedback is written when no path is configured.
const DefaultPath = "logs/feedback_log.txt"

// Config controls rotation of the feedback log.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink appends entries to the log file.
type Sink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

var _ feedback.Sink = (*Sink)(nil)

// New creates a file sink. Missing directories are created on first write.
func New(cfg Config) *Sink {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
	return &Sink{out: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}
}

// Write implements feedback.Sink.
func (s *Sink) Write(ctx context.Context, entry feedback.Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(line); err != nil {
		return fmt.Errorf("write feedback: %w", err)
	}
	return nil
}

// Close closes the current log file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
