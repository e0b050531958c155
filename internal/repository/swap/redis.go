package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires keys left behind by a process that died before closing.
	TTL time.Duration
}

// RedisDriver keeps tiles as keys under <namespace>:z:x:y.
type RedisDriver struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string
}

var _ Driver = (*RedisDriver)(nil)

func NewRedisDriver(cfg RedisConfig, namespace string) (*RedisDriver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisDriver{
		client:    client,
		ttl:       ttl,
		namespace: namespace,
	}, nil
}

func (d *RedisDriver) keyFor(k tile.Coord) string {
	return fmt.Sprintf("%s:%d:%d:%d", d.namespace, k.Z, k.X, k.Y)
}

func (d *RedisDriver) Get(k tile.Coord) ([]byte, bool, error) {
	data, err := d.client.Get(context.Background(), d.keyFor(k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}
	return data, true, nil
}

func (d *RedisDriver) Set(k tile.Coord, v []byte) error {
	if err := d.client.Set(context.Background(), d.keyFor(k), v, d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (d *RedisDriver) Delete(k tile.Coord) error {
	if err := d.client.Del(context.Background(), d.keyFor(k)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

// Close deletes every key of the namespace and closes the client.
func (d *RedisDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	iter := d.client.Scan(ctx, 0, d.namespace+":*", 512).Iterator()
	batch := make([]string, 0, 512)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			errs = append(errs, d.client.Del(ctx, batch...).Err())
			batch = batch[:0]
		}
	}
	errs = append(errs, iter.Err())
	if len(batch) > 0 {
		errs = append(errs, d.client.Del(ctx, batch...).Err())
	}
	errs = append(errs, d.client.Close())

	return errors.Join(errs...)
}
