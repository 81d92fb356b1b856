package otherwise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// ListingCache holds published post listings between mutations. Misses and
// backend failures both report ok=false so callers fall through to the store.
type ListingCache interface {
	Get(ctx context.Context, key string) ([]Post, bool)
	Set(ctx context.Context, key string, posts []Post)
	Invalidate(ctx context.Context)
}

func listingKey(contentType ContentType, featured *bool) string {
	f := "any"
	if featured != nil {
		f = strconv.FormatBool(*featured)
	}
	return "published:" + string(contentType) + ":" + f
}

type cacheEntry struct {
	posts   []Post
	fetched time.Time
}

// MemoryCache is an in-process TTL cache of published listings.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewMemoryCache creates a MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Since(e.fetched) >= c.ttl {
		return nil, false
	}
	return e.posts, true
}

func (c *MemoryCache) Set(_ context.Context, key string, posts []Post) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{posts: posts, fetched: time.Now()}
	c.mu.Unlock()
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *MemoryCache) Invalidate(context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

const (
	redisGenerationKey = "otherwise:listings:gen"
	redisTimeout       = 300 * time.Millisecond
)

// RedisCache shares listings between instances. Keys embed a generation
// counter; Invalidate bumps it so every instance misses at once.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger echo.Logger
}

// NewRedisCache connects to url (redis://...) and checks the connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration, logger echo.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// A cache outage should fall through to the store quickly.
	if opts.DialTimeout == 0 {
		opts.DialTimeout = redisTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = redisTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = redisTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = -1
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, redisGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) key(ctx context.Context, key string) (string, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("otherwise:listings:%d:%s", gen, key), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Post, bool) {
	k, err := c.key(ctx, key)
	if err != nil {
		c.logger.Warnf("listing cache get: %v", err)
		return nil, false
	}
	data, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnf("listing cache get: %v", err)
		}
		return nil, false
	}
	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		c.logger.Warnf("listing cache decode: %v", err)
		return nil, false
	}
	return posts, true
}

func (c *RedisCache) Set(ctx context.Context, key string, posts []Post) {
	k, err := c.key(ctx, key)
	if err != nil {
		c.logger.Warnf("listing cache set: %v", err)
		return
	}
	data, err := json.Marshal(posts)
	if err != nil {
		c.logger.Warnf("listing cache encode: %v", err)
		return
	}
	if err := c.client.Set(ctx, k, data, c.ttl).Err(); err != nil {
		c.logger.Warnf("listing cache set: %v", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, redisGenerationKey).Err(); err != nil {
		c.logger.Warnf("listing cache invalidate: %v", err)
	}
}

// listPublished returns published posts of contentType through the cache.
func (a *App) listPublished(ctx context.Context, contentType ContentType, featured *bool) ([]Post, error) {
	key := listingKey(contentType, featured)
	if posts, ok := a.Cache.Get(ctx, key); ok {
		return posts, nil
	}
	posts, err := a.Store.ListPosts(ctx, contentType, PostQuery{Status: StatusPublished, Featured: featured})
	if err != nil {
		return nil, err
	}
	a.Cache.Set(ctx, key, posts)
	return posts, nil
}

// listAllPublished merges every content type, newest first.
func (a *App) listAllPublished(ctx context.Context) ([]Post, error) {
	var all []Post
	for _, ct := range ContentTypes {
		posts, err := a.listPublished(ctx, ct, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, posts...)
	}
	SortByDisplayDate(all)
	return all, nil
}

func (a *App) invalidateListings(ctx context.Context) {
	a.Cache.Invalidate(ctx)
}
