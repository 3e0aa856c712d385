package socialcast

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Seann-Moser/socialcast/config"
)

const connectTimeout = 10 * time.Second

// Connect opens the Mongo database and, when configured, Redis. The returned func closes
// both.
func Connect(ctx context.Context, cfg config.Config) (*mongo.Database, *redis.Client, func(context.Context), error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	closeFn := func(ctx context.Context) {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = client.Disconnect(ctx)
	}
	return client.Database(cfg.MongoDatabase), rdb, closeFn, nil
}
