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

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *messaging.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return classify(err, "mongo: append message")
}

func (r *MessageRepository) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, messaging.ErrMessageNotFound
		}
		return nil, classify(err, "mongo: load message")
	}
	return doc.toDomain(), nil
}

// ListForConversation pages newest first. One extra document is fetched to
// learn whether another page exists.
func (r *MessageRepository) ListForConversation(ctx context.Context, id messaging.ConversationID, query messaging.MessageQuery) (messaging.MessagePage, error) {
	filter := messageListFilter(id, query)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(query.Offset()))
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit) + 1)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return messaging.MessagePage{}, classify(err, "mongo: list messages")
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return messaging.MessagePage{}, classify(err, "mongo: decode messages")
	}
	more := query.Limit > 0 && len(docs) > query.Limit
	if more {
		docs = docs[:query.Limit]
	}
	items := make([]*messaging.Message, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toDomain())
	}
	return messaging.MessagePage{Items: items, HasMore: more}, nil
}

func messageListFilter(id messaging.ConversationID, query messaging.MessageQuery) bson.M {
	filter := bson.M{"conversation_id": string(id)}
	if query.ViewerID != "" {
		filter["deleted_for"] = bson.M{"$ne": query.ViewerID}
	}
	if query.Before != nil {
		at := query.Before.At.UTC()
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": at}},
			bson.M{"created_at": at, "_id": bson.M{"$lt": string(query.Before.ID)}},
		}
	}
	return filter
}

func (r *MessageRepository) UnreadIDs(ctx context.Context, id messaging.ConversationID, userID string) ([]messaging.MessageID, error) {
	filter := bson.M{
		"conversation_id": string(id),
		"read_by.user_id": bson.M{"$ne": userID},
		"deleted_for":     bson.M{"$ne": userID},
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "mongo: unread messages")
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify(err, "mongo: decode unread messages")
	}
	out := make([]messaging.MessageID, 0, len(rows))
	for _, row := range rows {
		out = append(out, messaging.MessageID(row.ID))
	}
	return out, nil
}

// MarkRead pushes one receipt per message. The filter skips messages the
// user already read, so only ids that gained a receipt are returned.
func (r *MessageRepository) MarkRead(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, userID string, at time.Time) ([]messaging.MessageID, error) {
	at = at.UTC()
	receipt := receiptDocument{UserID: userID, ReadAt: at}
	newly := make([]messaging.MessageID, 0, len(ids))
	for _, mid := range ids {
		filter := bson.M{
			"_id":             string(mid),
			"conversation_id": string(id),
			"read_by.user_id": bson.M{"$ne": userID},
		}
		update := bson.M{
			"$push": bson.M{"read_by": receipt},
			"$set":  bson.M{"updated_at": at},
		}
		res, err := r.col.UpdateOne(ctx, filter, update)
		if err != nil {
			return nil, classify(err, "mongo: mark read")
		}
		if res.ModifiedCount == 1 {
			newly = append(newly, mid)
		}
	}
	return newly, nil
}

func (r *MessageRepository) RefreshStatus(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID, participants []string, at time.Time) (int, error) {
	if len(ids) == 0 || len(participants) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"_id":             bson.M{"$in": messageIDStrings(ids)},
		"conversation_id": string(id),
		"status":          bson.M{"$ne": string(messaging.DeliveryRead)},
		"read_by.user_id": bson.M{"$all": participants},
	}
	update := bson.M{"$set": bson.M{"status": string(messaging.DeliveryRead), "updated_at": at.UTC()}}
	res, err := r.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, classify(err, "mongo: refresh status")
	}
	return int(res.ModifiedCount), nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, id messaging.MessageID, at time.Time) (bool, error) {
	filter := bson.M{"_id": string(id), "status": string(messaging.DeliverySent)}
	update := bson.M{"$set": bson.M{"status": string(messaging.DeliveryDelivered), "updated_at": at.UTC()}}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, classify(err, "mongo: mark delivered")
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, id)
}

func (r *MessageRepository) HideFor(ctx context.Context, id messaging.MessageID, userID string, at time.Time) error {
	filter := bson.M{"_id": string(id), "deleted_for": bson.M{"$ne": userID}}
	update := bson.M{
		"$addToSet": bson.M{"deleted_for": userID},
		"$set":      bson.M{"updated_at": at.UTC()},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify(err, "mongo: hide message")
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return r.mustExist(ctx, id)
}

func (r *MessageRepository) Remove(ctx context.Context, id messaging.MessageID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	return classify(err, "mongo: remove message")
}

func (r *MessageRepository) mustExist(ctx context.Context, id messaging.MessageID) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)}, options.Count().SetLimit(1))
	if err != nil {
		return classify(err, "mongo: load message")
	}
	if n == 0 {
		return messaging.ErrMessageNotFound
	}
	return nil
}

var _ messaging.MessageRepository = (*MessageRepository)(nil)
