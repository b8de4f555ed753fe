package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/snaplink/chatsync/internal/apperr"
	"github.com/snaplink/chatsync/internal/model"
)

type ConversationRepository struct {
	coll *mongo.Collection
}

func NewConversationRepository(coll *mongo.Collection) *ConversationRepository {
	return &ConversationRepository{coll: coll}
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	_, err := r.coll.InsertOne(ctx, c)
	return apperr.Classify(err)
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Classify(err)
	}
	return &c, nil
}

func (r *ConversationRepository) ListByMember(ctx context.Context, userID string) ([]model.Conversation, error) {
	cur, err := r.coll.Find(ctx, bson.M{"members": userID})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	defer cur.Close(ctx)
	out := []model.Conversation{}
	for cur.Next(ctx) {
		var c model.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return apperr.Classify(err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) AddMember(ctx context.Context, id, userID string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$addToSet": bson.M{"members": userID}})
	if err != nil {
		return apperr.Classify(err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) RemoveMember(ctx context.Context, id, userID string) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$pull": bson.M{"members": userID, "admins": userID},
	})
	if err != nil {
		return apperr.Classify(err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_activity": at}})
	return apperr.Classify(err)
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Classify(err)
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
