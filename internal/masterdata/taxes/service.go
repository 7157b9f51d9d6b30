package taxes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "taxes:template:"

// Cache fronts a Repository with Redis. Concurrent misses for the same
// template share one load.
type Cache struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache wraps next. A nil client disables caching.
func NewCache(next Repository, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{next: next, client: client, ttl: ttl}
}

// Get implements Repository.
func (c *Cache) Get(ctx context.Context, name string) (Template, error) {
	if name == "" {
		return Template{}, ErrTemplateNotFound
	}
	if c.client == nil {
		return c.next.Get(ctx, name)
	}
	key := cacheKeyPrefix + name
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Template
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return c.next.Get(ctx, name)
	}
	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		tmpl, err := c.next.Get(ctx, name)
		if err != nil {
			return Template{}, err
		}
		payload, err := json.Marshal(tmpl)
		if err != nil {
			return Template{}, fmt.Errorf("taxes: encode template: %w", err)
		}
		_ = c.client.Set(ctx, key, payload, c.ttl).Err()
		return tmpl, nil
	})
	if err != nil {
		return Template{}, err
	}
	return v.(Template), nil
}
