package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("user with this username already exists")
)

// =============================================================================
// Database Interface
// =============================================================================

// Store defines the interface for user storage operations.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, userID string) error
}

// =============================================================================
// MongoDB Implementation of Store
// =============================================================================

var _ Store = &MongoDBStore{}

// MongoDBStore implements the Store interface using MongoDB.
type MongoDBStore struct {
	usersCollection *mongo.Collection
}

// NewMongoDBStore creates a new MongoDBStore instance.
func NewMongoDBStore(db *mongo.Database, usersCollectionName string) *MongoDBStore {
	return &MongoDBStore{
		usersCollection: db.Collection(usersCollectionName),
	}
}

// EnsureIndexes makes usernames unique.
func (m *MongoDBStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.usersCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// GetUserByID retrieves a user by their ID.
func (m *MongoDBStore) GetUserByID(ctx context.Context, userID string) (*User, error) {
	return m.findOne(ctx, bson.M{"_id": userID})
}

// GetUserByUsername retrieves a user by their username.
func (m *MongoDBStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.findOne(ctx, bson.M{"username": username})
}

func (m *MongoDBStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := m.usersCollection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser assigns an ID and inserts the user.
func (m *MongoDBStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.ID = uuid.New().String()
	user.CreatedAt, user.UpdatedAt = now, now
	_, err := m.usersCollection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser replaces an existing user document.
func (m *MongoDBStore) UpdateUser(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := m.usersCollection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser deletes a user by their ID.
func (m *MongoDBStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := m.usersCollection.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Profiles exposes name and preferences of stored users to the post workflow.
type Profiles struct {
	Store Store
}

func (p Profiles) Profile(ctx context.Context, userID string) (string, []string, error) {
	u, err := p.Store.GetUserByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return u.Name, u.Preferences, nil
}
