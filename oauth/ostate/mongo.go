package ostate

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Store = &MongoStore{}

// MongoStore keeps state records in the oauth_states collection.
type MongoStore struct {
	states *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{states: db.Collection("oauth_states")}
}

// EnsureIndexes creates the TTL index that lets mongo purge abandoned attempts.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.states.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, st *State) error {
	_, err := s.states.InsertOne(ctx, st)
	return err
}

func (s *MongoStore) Take(ctx context.Context, state string) (*State, error) {
	var out State
	err := s.states.FindOneAndDelete(ctx, bson.M{"_id": state}).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	return &out, nil
}
