package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/model"
)

// MessageRepository persists messages and serves ordered history reads.
// Reads go through a circuit breaker so a flapping backend fails fast as a
// transient error instead of stacking up timeouts.
type MessageRepository struct {
	coll *mongo.Collection
	cb   *gobreaker.CircuitBreaker
	log  *zap.SugaredLogger
}

func NewMessageRepository(coll *mongo.Collection, log *zap.SugaredLogger) *MessageRepository {
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conv_created_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), ix)

	st := gobreaker.Settings{
		Name:     "messages",
		Interval: 60 * time.Second,
		Timeout:  15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &MessageRepository{coll: coll, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

// Insert writes a message idempotently: redelivering the same id is a no-op.
func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	filter := bson.M{"_id": m.ID}
	update := bson.M{"$setOnInsert": m}
	opts := options.Update().SetUpsert(true)
	if _, err := r.coll.UpdateOne(ctx, filter, update, opts); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// FetchMessages returns the conversation's messages ordered by created_at
// ascending. Ids are unique within one result by construction (_id key).
func (r *MessageRepository) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
		cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		defer cur.Close(ctx)
		out := []model.Message{}
		for cur.Next(ctx) {
			var m model.Message
			if err := cur.Decode(&m); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		if err := cur.Err(); err != nil {
			return nil, apperr.Classify(err)
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.Transient(err)
		}
		return nil, err
	}
	return res.([]model.Message), nil
}

// DeleteByConversation removes all messages of a conversation. Used by the
// conversation delete cascade.
func (r *MessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return apperr.Classify(err)
}
