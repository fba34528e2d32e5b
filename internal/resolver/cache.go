package resolver

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Cache holds resolved permission sets per user. Entries are evicted on any
// policy write affecting the user; role- and group-level writes purge the
// whole cache because mapping them back to users would cost more than the
// re-resolution they save.
type Cache struct {
	entries *lru.Cache[string, []EffectivePermission]
}

// NewCache constructs an LRU cache with the given capacity.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, []EffectivePermission](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Get returns the cached permission set for a user.
func (c *Cache) Get(userID string) ([]EffectivePermission, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(userID)
}

// Add stores a resolved permission set.
func (c *Cache) Add(userID string, perms []EffectivePermission) {
	if c == nil {
		return
	}
	c.entries.Add(userID, perms)
}

// InvalidateUser removes a single user's entry.
func (c *Cache) InvalidateUser(userID string) {
	if c == nil {
		return
	}
	c.entries.Remove(userID)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

const invalidateAllToken = "*"

// Invalidator propagates cache invalidations to the local cache and, when a
// redis client is configured, to every other process through pub/sub.
// It implements the policy store's invalidation contract.
type Invalidator struct {
	cache   *Cache
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewInvalidator constructs an Invalidator. The redis client may be nil for
// single-process deployments and tests.
func NewInvalidator(cache *Cache, client *redis.Client, channel string, logger *slog.Logger) *Invalidator {
	if channel == "" {
		channel = "sentra:policy:invalidate"
	}
	return &Invalidator{cache: cache, client: client, channel: channel, logger: logger}
}

// InvalidateUser evicts one user locally and broadcasts the eviction.
func (i *Invalidator) InvalidateUser(ctx context.Context, userID string) {
	i.cache.InvalidateUser(userID)
	i.publish(ctx, userID)
}

// InvalidateAll purges the local cache and broadcasts a full purge.
func (i *Invalidator) InvalidateAll(ctx context.Context) {
	i.cache.Purge()
	i.publish(ctx, invalidateAllToken)
}

func (i *Invalidator) publish(ctx context.Context, payload string) {
	if i.client == nil {
		return
	}
	if err := i.client.Publish(ctx, i.channel, payload).Err(); err != nil && i.logger != nil {
		i.logger.Warn("invalidation publish", slog.Any("error", err))
	}
}

// Listen applies invalidations broadcast by other processes until the
// context is canceled.
func (i *Invalidator) Listen(ctx context.Context) error {
	if i.client == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := i.client.Subscribe(ctx, i.channel)
	defer func() {
		_ = sub.Close()
	}()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == invalidateAllToken {
				i.cache.Purge()
			} else {
				i.cache.InvalidateUser(msg.Payload)
			}
		}
	}
}
