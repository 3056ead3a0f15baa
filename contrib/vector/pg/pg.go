package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/vector"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PGVectorStore implements vector.VectorStore using PostgreSQL with the pgvector extension
type PGVectorStore struct {
	db        *sql.DB
	dimension int
	tableName string
}

var _ vector.VectorStore = (*PGVectorStore)(nil)

// PGVectorConfig holds pgvector configuration
type PGVectorConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension (default: 768 for text-embedding-004)
	TableName string // Table name (default: evidence_chunks)
}

// DefaultPGVectorConfig returns default pgvector configuration
func DefaultPGVectorConfig() *PGVectorConfig {
	return &PGVectorConfig{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		DBName:    "adaptive_rag",
		SSLMode:   "disable",
		Dimension: 768,
		TableName: "evidence_chunks",
	}
}

// DSN renders the lib/pq connection string.
func (c *PGVectorConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Validate checks the settings that are interpolated into SQL.
func (c *PGVectorConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", errors.ErrInvalidInput)
	}
	if !tableNamePattern.MatchString(c.TableName) {
		return fmt.Errorf("%w: invalid table name %q", errors.ErrInvalidInput, c.TableName)
	}
	return nil
}

// NewPGVectorStore connects, enables pgvector and creates the table if needed.
func NewPGVectorStore(ctx context.Context, config *PGVectorConfig) (*PGVectorStore, error) {
	if config == nil {
		config = DefaultPGVectorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PGVectorStore{
		db:        db,
		dimension: config.Dimension,
		tableName: config.TableName,
	}
	if err := store.setup(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return store, nil
}

func (s *PGVectorStore) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		text TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// AddEmbedding upserts an embedding
func (s *PGVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil || embedding.ID == "" {
		return fmt.Errorf("%w: embedding and ID are required", errors.ErrInvalidInput)
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("%w: embedding dimension mismatch: expected %d, got %d",
			errors.ErrInvalidInput, s.dimension, len(embedding.Vector))
	}

	meta, err := encodeMetadata(embedding.Metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, text, metadata, embedding)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		text = EXCLUDED.text,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, embedding.ID, embedding.Text, meta, pgvector.NewVector(embedding.Vector)); err != nil {
		return fmt.Errorf("failed to add embedding: %w", err)
	}
	return nil
}

// Search ranks rows by cosine distance; Score is reported as 1 - distance.
func (s *PGVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector dimension mismatch: expected %d, got %d",
			errors.ErrInvalidInput, s.dimension, len(queryVector))
	}
	if topK <= 0 {
		topK = 10
	}

	query := fmt.Sprintf(`
	SELECT id, text, metadata, embedding, 1 - (embedding <=> $1) AS score
	FROM %s
	ORDER BY embedding <=> $1, id
	LIMIT $2
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	results := make([]*vector.Embedding, 0, topK)
	for rows.Next() {
		var (
			emb   vector.Embedding
			meta  []byte
			vec   pgvector.Vector
			score float64
		)
		if err := rows.Scan(&emb.ID, &emb.Text, &meta, &vec, &score); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if emb.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		emb.Vector = vec.Slice()
		emb.Score = float32(score)
		results = append(results, &emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return results, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *PGVectorStore) DeleteEmbedding(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}
	return nil
}

// GetEmbedding retrieves a specific embedding by ID
func (s *PGVectorStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf(`SELECT id, text, metadata, embedding FROM %s WHERE id = $1`, s.tableName)

	var (
		emb  vector.Embedding
		meta []byte
		vec  pgvector.Vector
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&emb.ID, &emb.Text, &meta, &vec)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	if emb.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	emb.Vector = vec.Slice()
	return &emb, nil
}

// Clear removes all embeddings
func (s *PGVectorStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.tableName)); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

// Count returns the number of embeddings
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}
