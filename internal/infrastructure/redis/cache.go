package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rifas-api/internal/domain"
)

const rafflesKey = "rifas:raffles"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
}

// RaffleCache keeps the last raffle listing the admin saw, so the dashboard
// still renders while the primary store is unreachable.
type RaffleCache struct {
	store cmdable
	ttl   time.Duration
}

// NewClient parses url and verifies connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRaffleCache(client *redis.Client, ttl time.Duration) *RaffleCache {
	return &RaffleCache{store: client, ttl: ttl}
}

func (c *RaffleCache) Save(ctx context.Context, raffles []domain.Raffle) error {
	data, err := json.Marshal(raffles)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, rafflesKey, data, c.ttl).Err()
}

// Load returns domain.ErrNotFound when nothing has been cached yet.
func (c *RaffleCache) Load(ctx context.Context) ([]domain.Raffle, error) {
	data, err := c.store.Get(ctx, rafflesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("raffle cache empty: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var raffles []domain.Raffle
	if err := json.Unmarshal(data, &raffles); err != nil {
		return nil, err
	}
	return raffles, nil
}
