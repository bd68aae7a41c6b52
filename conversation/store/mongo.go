package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweetpotato0/crashguide/conversation"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps one document per conversation keyed by _id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ conversation.Store = (*MongoStore)(nil)

// NewMongoStore connects, pings and ensures the updated_at index.
func NewMongoStore(ctx context.Context, cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		cfg = MongoConfigFromEnv()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "updated_at", Value: -1}}})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return &MongoStore{client: client, collection: coll}, nil
}

// Get implements conversation.Store.
func (s *MongoStore) Get(ctx context.Context, id string) (*conversation.State, error) {
	var st conversation.State
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&st)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if st.Slots == nil {
		st.Slots = conversation.Slots{}
	}
	return &st, nil
}

// AppendTurn implements conversation.Store.
func (s *MongoStore) AppendTurn(ctx context.Context, id string, t conversation.Turn) (*conversation.State, error) {
	return conversation.Append(ctx, s, id, t)
}

// Save inserts version 1 for a new conversation and otherwise replaces the
// document only while its stored version still matches.
func (s *MongoStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = time.Now().UTC()

	if st.Version == 0 {
		if _, err := s.collection.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return conflict(st.ID, st.Version)
			}
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
	} else {
		res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": st.ID, "version": st.Version}, next)
		if err != nil {
			return fmt.Errorf("failed to replace conversation: %w", err)
		}
		if res.MatchedCount == 0 {
			return conflict(st.ID, st.Version)
		}
	}
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}
