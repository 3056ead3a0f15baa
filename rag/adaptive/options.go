package adaptive

import (
	"log/slog"

	"github.com/sweetpotato0/adaptive-rag/rag/tokenizer"
)

// Config controls the adaptive loop.
type Config struct {
	Name             string // Logical name for logging
	MaxRetries       int    // Semantic retries per turn (web fallback and rewrites)
	MaxRegenerations int    // Extra generations after an ungrounded answer
	MinRelevant      int    // Relevant documents needed to skip the retry path
	HistoryWindow    int    // Trailing memory messages passed to the generator
	RecursionLimit   int    // Default per-turn node budget
	GraphMaxVisits   int    // Per-node visit guard
	QueryRewrite     bool   // Allow rewrite-and-retry when web fallback is unavailable
	RewriteAfterWeb  bool   // Also allow rewrites on local turns after web fallback
	Tokenizer        tokenizer.Tokenizer
	ContextTokens    int // Evidence token budget shared by generation and verification; 0 is unlimited
	Logger           *slog.Logger
}

// Option customises the engine configuration.
type Option func(*Config)

// WithMaxRetries bounds web fallback plus rewrite rounds.
func WithMaxRetries(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxRetries = n
		}
	}
}

// WithMaxRegenerations bounds regeneration after an ungrounded answer.
func WithMaxRegenerations(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxRegenerations = n
		}
	}
}

// WithMinRelevant sets how many relevant documents count as sufficient.
func WithMinRelevant(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MinRelevant = n
		}
	}
}

// WithHistoryWindow sets the conversation window used for generation.
func WithHistoryWindow(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.HistoryWindow = n
		}
	}
}

// WithRecursionLimit sets the default number of graph nodes a turn may enter.
func WithRecursionLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.RecursionLimit = n
		}
	}
}

// WithGraphMaxVisits tweaks the per-node visit guard.
func WithGraphMaxVisits(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.GraphMaxVisits = n
		}
	}
}

// WithQueryRewrite enables or disables the rewrite transition.
func WithQueryRewrite(enabled bool) Option {
	return func(cfg *Config) {
		cfg.QueryRewrite = enabled
	}
}

// WithRewriteAfterWeb lets locally routed turns keep rewriting the question
// after web fallback found nothing relevant. Off by default.
func WithRewriteAfterWeb(enabled bool) Option {
	return func(cfg *Config) {
		cfg.RewriteAfterWeb = enabled
	}
}

// WithContextBudget caps the evidence given to the generator at maxTokens as
// counted by tok. Documents that do not fit are dropped from the tail, and
// the groundedness check sees the same reduced set.
func WithContextBudget(tok tokenizer.Tokenizer, maxTokens int) Option {
	return func(cfg *Config) {
		if tok != nil && maxTokens > 0 {
			cfg.Tokenizer = tok
			cfg.ContextTokens = maxTokens
		}
	}
}

// WithLogger overrides the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:             "adaptive-rag",
		MaxRetries:       2,
		MaxRegenerations: 1,
		MinRelevant:      1,
		HistoryWindow:    10,
		RecursionLimit:   50,
		GraphMaxVisits:   10,
		QueryRewrite:     true,
	}
}

func applyOptions(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}
