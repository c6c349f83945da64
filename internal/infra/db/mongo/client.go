package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	conversationsCollection = "chat_conversations"
	messagesCollection      = "chat_messages"
	idempotencyCollection   = "app_idempotency"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(err, "mongo: connect")
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return classify(c.DB.Client().Ping(ctx, nil), "mongo: ping")
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the chat repositories rely on. The
// participants_key index is what makes CreateOrGet race free.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	conversations := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}}},
	}
	if _, err := c.DB.Collection(conversationsCollection).Indexes().CreateMany(ctx, conversations); err != nil {
		return classify(err, "mongo: conversation indexes")
	}
	messages := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	}
	if _, err := c.DB.Collection(messagesCollection).Indexes().CreateMany(ctx, messages); err != nil {
		return classify(err, "mongo: message indexes")
	}
	return nil
}
