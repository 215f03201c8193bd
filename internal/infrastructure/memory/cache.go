package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rifas-api/internal/domain"
)

// RaffleCache is the in-process fallback used when REDIS_URL is unset.
type RaffleCache struct {
	mu      sync.RWMutex
	raffles []domain.Raffle
	saved   bool
}

func NewRaffleCache() *RaffleCache { return &RaffleCache{} }

func (c *RaffleCache) Save(_ context.Context, raffles []domain.Raffle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raffles = append([]domain.Raffle(nil), raffles...)
	c.saved = true
	return nil
}

func (c *RaffleCache) Load(_ context.Context) ([]domain.Raffle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.saved {
		return nil, fmt.Errorf("raffle cache empty: %w", domain.ErrNotFound)
	}
	return append([]domain.Raffle(nil), c.raffles...), nil
}
