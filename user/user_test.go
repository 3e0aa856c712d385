package user

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoDBStore_GetUserByUsername(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		store := NewMongoDBStore(mt.DB, "users")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "foo.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "username", Value: "alice"},
			{Key: "name", Value: "Alice"},
			{Key: "preferences", Value: bson.A{"concise"}},
		}))
		u, err := store.GetUserByUsername(context.Background(), "alice")
		if err != nil {
			mt.Fatalf("GetUserByUsername: %v", err)
		}
		if u.ID != "u1" || u.Name != "Alice" || len(u.Preferences) != 1 {
			mt.Errorf("unexpected user %+v", u)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		store := NewMongoDBStore(mt.DB, "users")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "foo.users", mtest.FirstBatch))
		if _, err := store.GetUserByUsername(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
			mt.Fatalf("error = %v, want ErrUserNotFound", err)
		}
	})
}

func TestMongoDBStore_CreateUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id", func(mt *mtest.T) {
		store := NewMongoDBStore(mt.DB, "users")
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		u := &User{Username: "alice"}
		if err := store.CreateUser(context.Background(), u); err != nil {
			mt.Fatalf("CreateUser: %v", err)
		}
		if u.ID == "" || u.CreatedAt.IsZero() {
			mt.Errorf("id or timestamp not set: %+v", u)
		}
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		store := NewMongoDBStore(mt.DB, "users")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := store.CreateUser(context.Background(), &User{Username: "alice"})
		if !errors.Is(err, ErrUsernameTaken) {
			mt.Fatalf("error = %v, want ErrUsernameTaken", err)
		}
	})
}

func TestMongoDBStore_UpdateUser_NotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no match", func(mt *mtest.T) {
		store := NewMongoDBStore(mt.DB, "users")
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}})
		err := store.UpdateUser(context.Background(), &User{ID: "missing"})
		if !errors.Is(err, ErrUserNotFound) {
			mt.Fatalf("error = %v, want ErrUserNotFound", err)
		}
	})
}

