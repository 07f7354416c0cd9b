package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indica que la clave no existe en el store.
var ErrNotFound = errors.New("store: key not found")

// KV es el colaborador de persistencia clave-valor. Abstraído para poder
// usar un fake en los tests del identity store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	// SetAll escribe todos los pares en una sola operación: un lector
	// nunca ve un registro a medio escribir.
	SetAll(ctx context.Context, pairs map[string]string) error
	GetAll(ctx context.Context, keys ...string) (map[string]string, error)
}

// RedisKV implementa KV sobre go-redis.
type RedisKV struct {
	rdb *redis.Client
}

// NewRedisKV conecta a redis y valida con un ping.
func NewRedisKV(addr string, db int) (*RedisKV, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisKV{rdb: rdb}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) SetAll(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, k, v)
	}
	return r.rdb.MSet(ctx, args...).Err()
}

func (r *RedisKV) GetAll(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
