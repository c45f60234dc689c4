package store

import (
	"context"
	"errors"

	redis "github.com/go-redis/redis/v8"
	"github.com/greut/iiif-tiler/config"
)

// Redis keeps derivatives as plain string values.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, c config.Redis) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client, prefix: c.Prefix}, nil
}

func (r *Redis) key(id, path string) (string, error) {
	key, err := Key(id, path)
	if err != nil {
		return "", err
	}
	return r.prefix + key, nil
}

// Put sets the value without expiration.
func (r *Redis) Put(ctx context.Context, id, path string, data []byte) error {
	key, err := r.key(id, path)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, 0).Err()
}

// Get reads the value.
func (r *Redis) Get(ctx context.Context, id, path string) ([]byte, error) {
	key, err := r.key(id, path)
	if err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// Exists checks for the key.
func (r *Redis) Exists(ctx context.Context, id, path string) (bool, error) {
	key, err := r.key(id, path)
	if err != nil {
		return false, err
	}

	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Close the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
