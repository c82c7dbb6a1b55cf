package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tavernlink/internal/storage"
)

// Client — AttemptStore в памяти процесса. Состояние теряется при рестарте.
type Client struct {
	mu      sync.Mutex
	limit   map[string][]time.Time
	revoked map[string]time.Time
	now     func() time.Time
}

func New() *Client {
	return &Client{
		limit:   make(map[string][]time.Time),
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

var _ storage.AttemptStore = (*Client)(nil)

func (c *Client) Close() error { return nil }

// CheckRateLimit — скользящее окно: хранит отметки попыток за последние AttemptWindow.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-storage.AttemptWindow)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= storage.AttemptLimit {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}

func (c *Client) RevokeUser(ctx context.Context, userID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.revoked[userID]; !ok || at.After(prev) {
		c.revoked[userID] = at
	}
	return nil
}

func (c *Client) RevokedAt(ctx context.Context, userID string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.revoked[userID]
	if !ok || c.now().Sub(at) > storage.RevocationTTL {
		return time.Time{}, nil
	}
	return at, nil
}
