package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Connect opens a client, verifies the connection with a ping and returns the
// named database handle.
func Connect(ctx context.Context, url, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return client, client.Database(database), nil
}

// EnsureIndexes creates the unique indexes the stores rely on. Uniqueness of
// user pki/email and session ids is enforced here, not in application code.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}

	if _, err := database.Collection("users").Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("pki"),
		unique("email"),
	}); err != nil {
		return err
	}
	if _, err := database.Collection("sessions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("sessionId"),
		{Keys: bson.D{{Key: "userPki", Value: 1}, {Key: "valid", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := database.Collection("teams").Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("id"),
	})
	return err
}
