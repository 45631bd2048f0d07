package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Redis is a Store backed by a Redis server shared between instances.
type Redis struct {
	client     redis.UniversalClient
	maxRetries uint64
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithMaxRetries bounds the optimistic-lock retries of Update.
func WithMaxRetries(n uint64) RedisOption {
	return func(r *Redis) {
		r.maxRetries = n
	}
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, maxRetries: 10}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Add implements Store.
func (r *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return val, nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Exists implements Store.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Update implements Store with WATCH/MULTI/EXEC. A concurrent write to key
// aborts the transaction and the whole read-modify-write is retried.
func (r *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	var fnErr error

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		mut, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		switch mut.Action {
		case Replace:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, mut.Value, redis.SetArgs{KeepTTL: true})
				return nil
			})
		case Remove:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
		}
		return err
	}

	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(2*time.Millisecond))
	backoff = retry.WithCappedDuration(50*time.Millisecond, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fnErr = nil
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	default:
		return unavailable(err)
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
