// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
)

// Prefix is prepended to every non-vendor environment key.
const Prefix = "ADAPTIVE_RAG_"

// LLMConfig selects the chat model backing routing, grading and generation.
type LLMConfig struct {
	Provider    string // openai|claude|gemini|langchain
	Model       string
	BaseURL     string
	Temperature float64
}

// EmbedderConfig selects the embedding model used by the evidence store.
type EmbedderConfig struct {
	Provider  string // openai|gemini|langchain
	Model     string
	BaseURL   string
	Dimension int
}

// PostgresConfig holds pgvector connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	Backend  string // memory|postgres
	Postgres PostgresConfig
}

// RetrievalConfig tunes chunking and ranking.
type RetrievalConfig struct {
	TopK         int
	MinScore     float64
	ChunkSize    int
	ChunkOverlap int
	Chunker      string // simple|markdown|token
	Reranker     string // cosine|mmr|cohere
}

// WebSearchConfig selects the fallback web search provider.
type WebSearchConfig struct {
	Provider   string // duckduckgo|tavily|none
	MaxResults int
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// RedisConfig holds Redis session settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// MongoConfig holds MongoDB session settings.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// SessionConfig selects where conversation memory lives.
type SessionConfig struct {
	Backend string // memory|redis|mongo
	Redis   RedisConfig
	Mongo   MongoConfig
}

// FeedbackConfig selects the feedback sink.
type FeedbackConfig struct {
	Backend string // file|badger
	Path    string
}

// WorkflowConfig carries the adaptive engine knobs.
type WorkflowConfig struct {
	MaxRetries       int
	MaxRegenerations int
	MinRelevant      int
	HistoryWindow    int
	RecursionLimit   int
	QueryRewrite     bool
	RewriteAfterWeb  bool
	ContextTokens    int
	RouteCacheTTL    time.Duration
}

// APIKeys holds vendor credentials read from their conventional variables.
type APIKeys struct {
	OpenAI    string
	Anthropic string
	Google    string
	Tavily    string
	Cohere    string
}

// Config is the full process configuration.
type Config struct {
	Environment string
	HTTPAddr    string
	Telemetry   bool
	// TraceSampleRatio is the fraction of turns traced; 1 traces all.
	TraceSampleRatio float64

	LLM       LLMConfig
	Embedder  EmbedderConfig
	Vector    VectorConfig
	Retrieval RetrievalConfig
	WebSearch WebSearchConfig
	Session   SessionConfig
	Feedback  FeedbackConfig
	Workflow  WorkflowConfig
	Keys      APIKeys
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		Environment:      "development",
		HTTPAddr:         ":8080",
		Telemetry:        true,
		TraceSampleRatio: 1,
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		Embedder: EmbedderConfig{
			Provider:  "gemini",
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		Vector: VectorConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "adaptive_rag",
				SSLMode: "disable",
				Table:   "evidence_chunks",
			},
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Chunker:      "simple",
			Reranker:     "cosine",
		},
		WebSearch: WebSearchConfig{
			Provider:   "duckduckgo",
			MaxResults: 3,
			Timeout:    30 * time.Second,
			CacheTTL:   10 * time.Minute,
		},
		Session: SessionConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "adaptive-rag:session:",
				TTL:    24 * time.Hour,
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "adaptive_rag",
				Collection: "conversation_messages",
			},
		},
		Feedback: FeedbackConfig{
			Backend: "file",
			Path:    "logs/feedback_log.txt",
		},
		Workflow: WorkflowConfig{
			MaxRetries:       2,
			MaxRegenerations: 1,
			MinRelevant:      1,
			HistoryWindow:    10,
			RecursionLimit:   50,
			QueryRewrite:     true,
		},
	}
}

// FromEnv loads the configuration from environment variables on top of Default.
func FromEnv() *Config {
	d := Default()
	return &Config{
		Environment:      getEnv("ENV", d.Environment),
		HTTPAddr:         getEnv("HTTP_ADDR", d.HTTPAddr),
		Telemetry:        getEnvBool("TELEMETRY", d.Telemetry),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", d.TraceSampleRatio),
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", d.LLM.Provider)),
			Model:       getEnv("LLM_MODEL", d.LLM.Model),
			BaseURL:     getEnv("LLM_BASE_URL", d.LLM.BaseURL),
			Temperature: getEnvFloat("LLM_TEMPERATURE", d.LLM.Temperature),
		},
		Embedder: EmbedderConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDER_PROVIDER", d.Embedder.Provider)),
			Model:     getEnv("EMBEDDER_MODEL", d.Embedder.Model),
			BaseURL:   getEnv("EMBEDDER_BASE_URL", d.Embedder.BaseURL),
			Dimension: getEnvInt("EMBEDDER_DIMENSION", d.Embedder.Dimension),
		},
		Vector: VectorConfig{
			Backend: strings.ToLower(getEnv("VECTOR_STORE", d.Vector.Backend)),
			Postgres: PostgresConfig{
				Host:     getEnv("POSTGRES_HOST", d.Vector.Postgres.Host),
				Port:     getEnvInt("POSTGRES_PORT", d.Vector.Postgres.Port),
				User:     getEnv("POSTGRES_USER", d.Vector.Postgres.User),
				Password: getEnv("POSTGRES_PASSWORD", d.Vector.Postgres.Password),
				DBName:   getEnv("POSTGRES_DB", d.Vector.Postgres.DBName),
				SSLMode:  getEnv("POSTGRES_SSLMODE", d.Vector.Postgres.SSLMode),
				Table:    getEnv("POSTGRES_TABLE", d.Vector.Postgres.Table),
			},
		},
		Retrieval: RetrievalConfig{
			TopK:         getEnvInt("TOP_K", d.Retrieval.TopK),
			MinScore:     getEnvFloat("MIN_SCORE", d.Retrieval.MinScore),
			ChunkSize:    getEnvInt("CHUNK_SIZE", d.Retrieval.ChunkSize),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", d.Retrieval.ChunkOverlap),
			Chunker:      strings.ToLower(getEnv("CHUNKER", d.Retrieval.Chunker)),
			Reranker:     strings.ToLower(getEnv("RERANKER", d.Retrieval.Reranker)),
		},
		WebSearch: WebSearchConfig{
			Provider:   strings.ToLower(getEnv("WEB_SEARCH", d.WebSearch.Provider)),
			MaxResults: getEnvInt("WEB_SEARCH_MAX_RESULTS", d.WebSearch.MaxResults),
			Timeout:    getEnvDuration("WEB_SEARCH_TIMEOUT", d.WebSearch.Timeout),
			CacheTTL:   getEnvDuration("WEB_SEARCH_CACHE_TTL", d.WebSearch.CacheTTL),
		},
		Session: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_STORE", d.Session.Backend)),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", d.Session.Redis.Addr),
				Password: getEnv("REDIS_PASSWORD", d.Session.Redis.Password),
				DB:       getEnvInt("REDIS_DB", d.Session.Redis.DB),
				Prefix:   getEnv("REDIS_PREFIX", d.Session.Redis.Prefix),
				TTL:      getEnvDuration("REDIS_TTL", d.Session.Redis.TTL),
			},
			Mongo: MongoConfig{
				URI:        getEnv("MONGODB_URI", d.Session.Mongo.URI),
				Database:   getEnv("MONGODB_DB", d.Session.Mongo.Database),
				Collection: getEnv("MONGODB_COLLECTION", d.Session.Mongo.Collection),
			},
		},
		Feedback: feedbackFromEnv(d.Feedback),
		Workflow: WorkflowConfig{
			MaxRetries:       getEnvInt("MAX_RETRIES", d.Workflow.MaxRetries),
			MaxRegenerations: getEnvInt("MAX_REGENERATIONS", d.Workflow.MaxRegenerations),
			MinRelevant:      getEnvInt("MIN_RELEVANT", d.Workflow.MinRelevant),
			HistoryWindow:    getEnvInt("HISTORY_WINDOW", d.Workflow.HistoryWindow),
			RecursionLimit:   getEnvInt("RECURSION_LIMIT", d.Workflow.RecursionLimit),
			QueryRewrite:     getEnvBool("QUERY_REWRITE", d.Workflow.QueryRewrite),
			RewriteAfterWeb:  getEnvBool("REWRITE_AFTER_WEB", d.Workflow.RewriteAfterWeb),
			ContextTokens:    getEnvInt("CONTEXT_TOKENS", d.Workflow.ContextTokens),
			RouteCacheTTL:    getEnvDuration("ROUTE_CACHE_TTL", d.Workflow.RouteCacheTTL),
		},
		Keys: APIKeys{
			OpenAI:    os.Getenv("OPENAI_API_KEY"),
			Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
			Google:    os.Getenv("GOOGLE_API_KEY"),
			Tavily:    os.Getenv("TAVILY_API_KEY"),
			Cohere:    os.Getenv("COHERE_API_KEY"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateFloatRange("trace_sample_ratio", c.TraceSampleRatio, 0, 1)
	v.ValidateOneOf("llm.provider", c.LLM.Provider, "openai", "claude", "gemini", "langchain")
	v.RequireNonEmpty("llm.model", c.LLM.Model)
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0, 2)
	switch c.LLM.Provider {
	case "openai":
		v.RequireNonEmpty("OPENAI_API_KEY", c.Keys.OpenAI)
	case "claude":
		v.RequireNonEmpty("ANTHROPIC_API_KEY", c.Keys.Anthropic)
	case "gemini":
		v.RequireNonEmpty("GOOGLE_API_KEY", c.Keys.Google)
	case "langchain":
		v.RequireNonEmpty("llm.base_url", c.LLM.BaseURL)
	}

	v.ValidateOneOf("embedder.provider", c.Embedder.Provider, "openai", "gemini", "langchain")
	v.RequireNonEmpty("embedder.model", c.Embedder.Model)
	v.ValidateRange("embedder.dimension", c.Embedder.Dimension, 1, 65535)
	switch c.Embedder.Provider {
	case "openai":
		v.RequireNonEmpty("OPENAI_API_KEY", c.Keys.OpenAI)
	case "gemini":
		v.RequireNonEmpty("GOOGLE_API_KEY", c.Keys.Google)
	case "langchain":
		v.RequireNonEmpty("embedder.base_url", c.Embedder.BaseURL)
	}

	v.ValidateOneOf("vector.backend", c.Vector.Backend, "memory", "postgres")
	if c.Vector.Backend == "postgres" {
		validatePostgres(v, c.Vector.Postgres)
	}

	v.RequirePositive("retrieval.top_k", c.Retrieval.TopK)
	v.ValidateFloatRange("retrieval.min_score", c.Retrieval.MinScore, -1, 1)
	v.RequirePositive("retrieval.chunk_size", c.Retrieval.ChunkSize)
	v.ValidateRange("retrieval.chunk_overlap", c.Retrieval.ChunkOverlap, 0, c.Retrieval.ChunkSize-1)
	v.ValidateOneOf("retrieval.chunker", c.Retrieval.Chunker, "simple", "markdown", "token")
	v.ValidateOneOf("retrieval.reranker", c.Retrieval.Reranker, "cosine", "mmr", "cohere")
	if c.Retrieval.Reranker == "cohere" {
		v.RequireNonEmpty("COHERE_API_KEY", c.Keys.Cohere)
	}

	v.ValidateOneOf("web_search.provider", c.WebSearch.Provider, "duckduckgo", "tavily", "none")
	if c.WebSearch.Provider != "none" {
		v.RequirePositive("web_search.max_results", c.WebSearch.MaxResults)
		v.RequirePositive("web_search.timeout", int(c.WebSearch.Timeout/time.Millisecond))
	}
	if c.WebSearch.Provider == "tavily" {
		v.RequireNonEmpty("TAVILY_API_KEY", c.Keys.Tavily)
	}

	v.ValidateOneOf("session.backend", c.Session.Backend, "memory", "redis", "mongo")
	switch c.Session.Backend {
	case "redis":
		validateRedis(v, c.Session.Redis)
	case "mongo":
		validateMongo(v, c.Session.Mongo)
	}

	v.ValidateOneOf("feedback.backend", c.Feedback.Backend, "file", "badger")
	v.RequireNonEmpty("feedback.path", c.Feedback.Path)

	v.ValidateRange("workflow.max_retries", c.Workflow.MaxRetries, 0, 10)
	v.ValidateRange("workflow.max_regenerations", c.Workflow.MaxRegenerations, 0, 10)
	v.RequirePositive("workflow.min_relevant", c.Workflow.MinRelevant)
	v.ValidateRange("workflow.history_window", c.Workflow.HistoryWindow, 0, 1000)
	v.RequirePositive("workflow.recursion_limit", c.Workflow.RecursionLimit)
	if c.Workflow.RecursionLimit > 0 {
		steps := adaptive.WorstCaseSteps(c.Workflow.MaxRetries, c.Workflow.MaxRegenerations)
		v.RequireAtLeast("workflow.recursion_limit", c.Workflow.RecursionLimit, steps,
			fmt.Sprintf("worst case for max_retries=%d, max_regenerations=%d", c.Workflow.MaxRetries, c.Workflow.MaxRegenerations))
	}
	v.ValidateRange("workflow.context_tokens", c.Workflow.ContextTokens, 0, 1<<20)

	return v.Error()
}

// DefaultBadgerFeedbackDir is used when the badger sink is chosen without a path.
const DefaultBadgerFeedbackDir = "data/feedback"

func feedbackFromEnv(d FeedbackConfig) FeedbackConfig {
	backend := strings.ToLower(getEnv("FEEDBACK_SINK", d.Backend))
	path := d.Path
	if backend == "badger" {
		path = DefaultBadgerFeedbackDir
	}
	return FeedbackConfig{Backend: backend, Path: getEnv("FEEDBACK_PATH", path)}
}

func validatePostgres(v *Validator, pg PostgresConfig) {
	v.RequireNonEmpty("postgres.host", pg.Host)
	v.ValidatePort("postgres.port", pg.Port)
	v.RequireNonEmpty("postgres.user", pg.User)
	v.RequireNonEmpty("postgres.db", pg.DBName)
	v.ValidateOneOf("postgres.sslmode", pg.SSLMode, "disable", "require", "verify-ca", "verify-full")
	v.RequireNonEmpty("postgres.table", pg.Table)
}

func validateRedis(v *Validator, r RedisConfig) {
	v.RequireNonEmpty("redis.addr", r.Addr)
	v.ValidateDBNumber("redis.db", r.DB)
	v.RequireNonEmpty("redis.prefix", r.Prefix)
}

func validateMongo(v *Validator, m MongoConfig) {
	v.RequireNonEmpty("mongodb.uri", m.URI)
	v.RequireNonEmpty("mongodb.database", m.Database)
	v.RequireNonEmpty("mongodb.collection", m.Collection)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(Prefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(Prefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(Prefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(Prefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(Prefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
