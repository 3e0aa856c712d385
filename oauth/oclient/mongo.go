package oclient

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

var _ Store = &MongoStore{}

// MongoStore is a MongoDB-backed implementation of Store.
type MongoStore struct {
	tokens *mongo.Collection
}

// NewMongoStore creates a store backed by the user_tokens collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{tokens: db.Collection("user_tokens")}
}

// EnsureIndexes creates the unique (user_id, platform) index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "platform", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_platform_unique"),
	})
	return err
}

func key(userID string, p platform.Platform) bson.M {
	return bson.M{"user_id": userID, "platform": p}
}

// Get fetches one credential.
func (s *MongoStore) Get(ctx context.Context, userID string, p platform.Platform) (*Credential, error) {
	var c Credential
	err := s.tokens.FindOne(ctx, key(userID, p)).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Upsert writes the credential. created_at is only set on insert.
func (s *MongoStore) Upsert(ctx context.Context, c *Credential) error {
	now := time.Now().UTC()
	set := bson.M{
		"access_token":  c.AccessToken,
		"refresh_token": c.RefreshToken,
		"member_id":     c.MemberID,
		"updated_at":    now,
	}
	unset := bson.M{}
	if c.ExpiresAt != nil {
		set["expires_at"] = c.ExpiresAt.UTC()
	} else {
		unset["expires_at"] = ""
	}
	if c.ClientID != "" {
		set["client_id"] = c.ClientID
		set["client_secret"] = c.ClientSecret
	}
	upd := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	_, err := s.tokens.UpdateOne(ctx, key(c.UserID, c.Platform), upd, options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	return nil
}

// Delete removes one credential.
func (s *MongoStore) Delete(ctx context.Context, userID string, p platform.Platform) error {
	res, err := s.tokens.DeleteOne(ctx, key(userID, p))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all credentials of a user.
func (s *MongoStore) List(ctx context.Context, userID string) ([]Credential, error) {
	cursor, err := s.tokens.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var out []Credential
	for cursor.Next(ctx) {
		var c Credential
		if err := cursor.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cursor.Err()
}
