package posts

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a summary or platform post does not exist or belongs to
// another user.
var ErrNotFound = errors.New("post not found")

// Store persists summaries and platform posts. Every lookup is scoped to the owning user.
type Store interface {
	CreateSummary(ctx context.Context, s *Summary) error
	GetSummary(ctx context.Context, userID, id string) (*Summary, error)
	UpdateSummary(ctx context.Context, s *Summary) error
	ListSummaries(ctx context.Context, userID string) ([]Summary, error)

	CreatePlatformPosts(ctx context.Context, posts []PlatformPost) error
	GetPlatformPost(ctx context.Context, userID, id string) (*PlatformPost, error)
	ListPlatformPosts(ctx context.Context, userID string, summaryIDs ...string) ([]PlatformPost, error)
	UpdatePlatformPost(ctx context.Context, p *PlatformPost) error

	// MarkPublished records a successful publish and clears any previous error.
	MarkPublished(ctx context.Context, id, externalID, externalURL string, at time.Time) error
	// MarkFailed records a human readable publishing error.
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

var _ Store = &MongoStore{}

// MongoStore keeps summaries and platform posts in two collections.
type MongoStore struct {
	summaries *mongo.Collection
	platforms *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		summaries: db.Collection("post_summaries"),
		platforms: db.Collection("post_platforms"),
	}
}

// EnsureIndexes creates the lookup indexes used by history queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.summaries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return err
	}
	_, err := s.platforms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "summary_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) CreateSummary(ctx context.Context, sum *Summary) error {
	_, err := s.summaries.InsertOne(ctx, sum)
	return err
}

func (s *MongoStore) GetSummary(ctx context.Context, userID, id string) (*Summary, error) {
	var sum Summary
	err := s.summaries.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&sum)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *MongoStore) UpdateSummary(ctx context.Context, sum *Summary) error {
	res, err := s.summaries.ReplaceOne(ctx, bson.M{"_id": sum.ID, "user_id": sum.UserID}, sum)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListSummaries(ctx context.Context, userID string) ([]Summary, error) {
	cursor, err := s.summaries.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var out []Summary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CreatePlatformPosts(ctx context.Context, posts []PlatformPost) error {
	if len(posts) == 0 {
		return nil
	}
	docs := make([]interface{}, len(posts))
	for i := range posts {
		docs[i] = posts[i]
	}
	_, err := s.platforms.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) GetPlatformPost(ctx context.Context, userID, id string) (*PlatformPost, error) {
	var p PlatformPost
	err := s.platforms.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) ListPlatformPosts(ctx context.Context, userID string, summaryIDs ...string) ([]PlatformPost, error) {
	filter := bson.M{"user_id": userID}
	if len(summaryIDs) > 0 {
		filter["summary_id"] = bson.M{"$in": summaryIDs}
	}
	cursor, err := s.platforms.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []PlatformPost
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UpdatePlatformPost(ctx context.Context, p *PlatformPost) error {
	res, err := s.platforms.ReplaceOne(ctx, bson.M{"_id": p.ID, "user_id": p.UserID}, p)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MarkPublished(ctx context.Context, id, externalID, externalURL string, at time.Time) error {
	return s.mark(ctx, id, bson.M{
		"$set": bson.M{
			"published":         true,
			"published_at":      at,
			"external_post_id":  externalID,
			"external_post_url": externalURL,
			"updated_at":        at,
		},
		"$unset": bson.M{"error_message": ""},
	})
}

func (s *MongoStore) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	return s.mark(ctx, id, bson.M{
		"$set": bson.M{"error_message": message, "updated_at": at},
	})
}

func (s *MongoStore) mark(ctx context.Context, id string, update bson.M) error {
	res, err := s.platforms.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
