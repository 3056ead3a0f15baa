package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/session"
)

// MongoStore keeps one document per message, indexed by thread and order.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ session.Store = (*MongoStore)(nil)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "adaptive_rag",
		Collection: "conversation_messages",
	}
}

type mongoMessage struct {
	ID        string         `bson:"_id"`
	ThreadID  string         `bson:"thread_id"`
	Seq       int64          `bson:"seq"`
	Role      message.Role   `bson:"role"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

// NewMongoStore connects to MongoDB and ensures the thread index exists.
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := store.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	return err
}

// Append implements session.Store. Seq is the insertion time in
// nanoseconds plus the message's offset in the batch.
func (s *MongoStore) Append(ctx context.Context, threadID string, msgs ...*message.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	base := time.Now().UnixNano()
	docs := make([]any, 0, len(msgs))
	for i, msg := range msgs {
		if msg == nil {
			continue
		}
		docs = append(docs, mongoMessage{
			ID:        msg.ID,
			ThreadID:  threadID,
			Seq:       base + int64(i),
			Role:      msg.Role,
			Content:   msg.Content,
			Metadata:  msg.Metadata,
			CreatedAt: msg.CreatedAt,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append messages to MongoDB: %w", err)
	}
	return nil
}

// Messages implements session.Store.
func (s *MongoStore) Messages(ctx context.Context, threadID string) ([]*message.Message, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"thread_id": threadID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []mongoMessage
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	msgs := make([]*message.Message, len(rows))
	for i, row := range rows {
		msgs[i] = &message.Message{
			ID:        row.ID,
			Role:      row.Role,
			Content:   row.Content,
			Metadata:  row.Metadata,
			CreatedAt: row.CreatedAt,
		}
	}
	return msgs, nil
}

// Delete implements session.Store.
func (s *MongoStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"thread_id": threadID}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
