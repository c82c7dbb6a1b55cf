package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tavernlink/internal/storage"
)

type Client struct {
	cli *redis.Client
}

var _ storage.AttemptStore = (*Client)(nil)

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// CheckRateLimit: фиксированное окно attempt_limit:{key}, TTL ставится на первой попытке. При превышении — HTTP 429.
func (c *Client) CheckRateLimit(ctx context.Context, key string) (allowed bool, err error) {
	k := "attempt_limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, storage.AttemptWindow)
	}
	return n <= int64(storage.AttemptLimit), nil
}

// RevokeUser хранит unix-время отзыва в revoked:{userID}; TTL — срок жизни самого долгого токена.
func (c *Client) RevokeUser(ctx context.Context, userID string, at time.Time) error {
	return c.cli.Set(ctx, "revoked:"+userID, strconv.FormatInt(at.Unix(), 10), storage.RevocationTTL).Err()
}

func (c *Client) RevokedAt(ctx context.Context, userID string) (time.Time, error) {
	val, err := c.cli.Get(ctx, "revoked:"+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis revoked value: %w", err)
	}
	return time.Unix(sec, 0), nil
}

// FlushDB очищает текущую БД Redis (сброс лимитов и отзывов при тестах).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
