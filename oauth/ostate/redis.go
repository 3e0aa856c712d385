package ostate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = &RedisStore{}

const redisKeyPrefix = "oauth_state:"

// RedisStore keeps state records as JSON values whose key TTL matches the record expiry.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Save(ctx context.Context, st *State) error {
	ttl := st.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("ostate: state already expired")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ostate: marshal state: %w", err)
	}
	return s.client.Set(ctx, redisKeyPrefix+st.State, payload, ttl).Err()
}

func (s *RedisStore) Take(ctx context.Context, state string) (*State, error) {
	raw, err := s.client.GetDel(ctx, redisKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ostate: decode state: %w", err)
	}
	return &out, nil
}
