package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultCachePrefix = "display_name:"

// NewRedisClient parses redisURL and checks the server is reachable.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// CachedResolver serves display names from Redis and asks next for misses.
// Redis failures degrade to next; they never fail a lookup.
type CachedResolver struct {
	client *redis.Client
	next   Resolver
	prefix string
	ttl    time.Duration
}

func NewCachedResolver(client *redis.Client, next Resolver, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedResolver{
		client: client,
		next:   next,
		prefix: defaultCachePrefix,
		ttl:    ttl,
	}
}

func (c *CachedResolver) key(userID string) string {
	return c.prefix + userID
}

func (c *CachedResolver) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	ids := Unique(userIDs)
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	missing := ids
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.WithError(err).Warn("identity: display name cache read failed")
	} else {
		missing = missing[:0:0]
		for i, value := range cached {
			name, ok := value.(string)
			if !ok || name == "" {
				missing = append(missing, ids[i])
				continue
			}
			names[ids[i]] = name
		}
	}
	if len(missing) == 0 {
		return names, nil
	}

	resolved, err := c.next.DisplayNames(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.client.Pipeline()
	for _, id := range missing {
		name, ok := resolved[id]
		if !ok {
			continue
		}
		names[id] = name
		pipe.Set(ctx, c.key(id), name, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warn("identity: display name cache write failed")
	}
	return names, nil
}

// Invalidate drops a cached name so the next lookup reads the profile table.
func (c *CachedResolver) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate display name: %w", err)
	}
	return nil
}

func (c *CachedResolver) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CachedResolver) Close() error {
	return c.client.Close()
}
