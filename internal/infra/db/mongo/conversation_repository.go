package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentalhub/internal/domain/messaging"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(conversationsCollection)}
}

// CreateOrGet upserts on the participant key so concurrent creators end up
// with the same document.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *messaging.Conversation) (*messaging.Conversation, bool, error) {
	doc := newConversationDocument(conv)
	filter := bson.M{"participants_key": doc.ParticipantsKey}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, classify(err, "mongo: create conversation")
	}
	if err == nil && res.UpsertedCount == 1 {
		return conv.Clone(), true, nil
	}
	stored, err := r.findOne(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id messaging.ConversationID) (*messaging.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ListForUser(ctx context.Context, query messaging.ConversationQuery) (messaging.ConversationPage, error) {
	filter := bson.M{"participants": query.UserID}
	if query.Status != "" {
		filter["status"] = string(query.Status)
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return messaging.ConversationPage{}, classify(err, "mongo: count conversations")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(query.Offset()))
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return messaging.ConversationPage{}, classify(err, "mongo: list conversations")
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return messaging.ConversationPage{}, classify(err, "mongo: decode conversations")
	}
	items := make([]*messaging.Conversation, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toDomain())
	}
	return messaging.ConversationPage{
		Items:   items,
		Total:   int(total),
		HasMore: hasMore(query.Offset(), len(items), int(total)),
	}, nil
}

// SetLastMessage replaces the pointer and never moves updated_at backwards.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, id messaging.ConversationID, last messaging.LastMessage) error {
	doc := newLastMessageDocument(last)
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"last_message": bson.M{"$literal": doc},
		"updated_at":   bson.M{"$max": bson.A{"$updated_at", doc.CreatedAt}},
	}}}}
	return r.update(ctx, id, pipeline, "mongo: set last message")
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, id messaging.ConversationID, excludingUserID string) error {
	conv, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	inc := bson.M{}
	for _, p := range conv.Recipients(excludingUserID) {
		inc[unreadField(p)] = 1
	}
	if len(inc) == 0 {
		return nil
	}
	return r.update(ctx, id, bson.M{"$inc": inc}, "mongo: increment unread")
}

// DecrementUnread subtracts inside the server so the floor at zero holds
// under concurrent readers.
func (r *ConversationRepository) DecrementUnread(ctx context.Context, id messaging.ConversationID, userID string, by int) error {
	if by <= 0 {
		return nil
	}
	field := unreadField(userID)
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		field: bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, by}}}},
	}}}}
	return r.update(ctx, id, pipeline, "mongo: decrement unread")
}

func (r *ConversationRepository) SetUnread(ctx context.Context, id messaging.ConversationID, userID string, value int) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{unreadField(userID): max(0, value)}}, "mongo: set unread")
}

func (r *ConversationRepository) SetStatus(ctx context.Context, id messaging.ConversationID, status messaging.ConversationStatus, blockedBy string, at time.Time) error {
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"status":     string(status),
		"blocked_by": blockedBy,
		"updated_at": bson.M{"$max": bson.A{"$updated_at", at.UTC()}},
	}}}}
	return r.update(ctx, id, pipeline, "mongo: set status")
}

func (r *ConversationRepository) update(ctx context.Context, id messaging.ConversationID, update any, msg string) error {
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return classify(err, msg)
	}
	if res.MatchedCount == 0 {
		return messaging.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*messaging.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, messaging.ErrConversationNotFound
		}
		return nil, classify(err, "mongo: load conversation")
	}
	return doc.toDomain(), nil
}

var _ messaging.ConversationRepository = (*ConversationRepository)(nil)
