package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/snaplink/chatsync/internal/config"
)

func NewMongoClient(cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Collections returns the conversation and message collections for the
// configured database.
func Collections(client *mongo.Client, cfg *config.Config) (*mongo.Collection, *mongo.Collection) {
	db := client.Database(cfg.Mongo.DB)
	return db.Collection("conversations"), db.Collection("messages")
}
