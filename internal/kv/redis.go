// internal/kv/redis.go
package kv

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis.
type RedisStore struct {
    Client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
    rdb := redis.NewClient(&redis.Options{
        Addr:         addr,
        Password:     password,
        DB:           db,
        DialTimeout:  5 * time.Second,
        ReadTimeout:  3 * time.Second,
        WriteTimeout: 3 * time.Second,
        PoolSize:     10,
        MinIdleConns: 5,
    })
    return &RedisStore{Client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
    if err := s.Client.Ping(ctx).Err(); err != nil {
        return fmt.Errorf("redis ping failed: %w", err)
    }
    return nil
}

func (s *RedisStore) Close() error {
    if s.Client != nil {
        return s.Client.Close()
    }
    return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
    val, err := s.Client.Get(ctx, key).Result()
    if errors.Is(err, redis.Nil) {
        return "", ErrNotFound
    }
    return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
    return s.Client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
    return s.Client.Del(ctx, key).Err()
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) (map[string]string, error) {
    out := map[string]string{}
    iter := s.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        return nil, err
    }
    if len(keys) == 0 {
        return out, nil
    }
    vals, err := s.Client.MGet(ctx, keys...).Result()
    if err != nil {
        return nil, err
    }
    for i, v := range vals {
        // nil means the key vanished between SCAN and MGET
        if str, ok := v.(string); ok {
            out[keys[i]] = str
        }
    }
    return out, nil
}

var _ Store = (*RedisStore)(nil)
