package pending

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the slot under one Redis key, shared by every process
// acting for the same account.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore creates a store at key; see KeyBuilder.PendingSubmission.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Load(ctx context.Context) (Submission, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, fmt.Errorf("redis GET %s failed: %w", r.key, err)
	}
	return decode(data)
}

func (r *RedisStore) Save(ctx context.Context, s Submission) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s failed: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s failed: %w", r.key, err)
	}
	return nil
}
