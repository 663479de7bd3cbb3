// Package cache puts an optional Redis read-through cache in front of the
// snippet repository.
//
// Only lookups by short identifier are cached. Lists are always read from
// storage because any create, update or delete would invalidate them.
// Cache failures are logged and bypassed: the repository below stays the
// source of truth, and a broken Redis never fails a request.
//
// FILL RACE:
// A reader that misses can load a row, lose the CPU to an update that
// commits and invalidates, and then write the old row back. Every snippet
// therefore has a version counter next to its entry. Writers bump it after
// they commit; a reader notes it before loading and fills only if it is
// unchanged, checked and written in one Lua script.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
)

// KeyPrefix namespaces every key this package writes.
const KeyPrefix = "sipp:snippet:"

// VersionPrefix namespaces the per-snippet version counters.
const VersionPrefix = "sipp:snippet-version:"

// Key returns the cache key for a short identifier.
func Key(shortID string) string { return KeyPrefix + shortID }

// VersionKey returns the version counter key for a short identifier.
func VersionKey(shortID string) string { return VersionPrefix + shortID }

// KV is the slice of Redis the cache needs. A missing version reads as 0.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Version(ctx context.Context, versionKey string) (int64, error)
	SetIfVersion(ctx context.Context, key, versionKey, value string, version int64, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, key, versionKey string, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil // Cache miss
		}
		return "", false, fmt.Errorf("failed to get cached snippet: %w", err)
	}
	return v, true, nil
}

func (r *RedisKV) Version(ctx context.Context, versionKey string) (int64, error) {
	v, err := r.client.Get(ctx, versionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read snippet version: %w", err)
	}
	return v, nil
}

// fillScript sets KEYS[1] only while KEYS[2] still holds the version the
// reader saw. GET of a missing key is false in Lua, hence the "or".
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (r *RedisKV) SetIfVersion(ctx context.Context, key, versionKey, value string, version int64, ttl time.Duration) (bool, error) {
	n, err := fillScript.Run(ctx, r.client, []string{key, versionKey},
		value, strconv.FormatInt(version, 10), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache snippet: %w", err)
	}
	return n == 1, nil
}

// Invalidate bumps the version and drops the entry in one transaction. The
// counter outlives the entry so an in-flight fill still sees the bump.
func (r *RedisKV) Invalidate(ctx context.Context, key, versionKey string, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.PExpire(ctx, versionKey, 2*ttl)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached snippet: %w", err)
	}
	return nil
}

// entry is the cached form. It keeps the storage ID, which the public
// JSON encoding of model.Snippet omits.
type entry struct {
	ID        int64     `json:"id"`
	ShortID   string    `json:"shortId"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository decorates a repository.SnippetRepository with the cache.
type Repository struct {
	next   repository.SnippetRepository
	kv     KV
	ttl    time.Duration
	logger logger.Logger
}

var _ repository.SnippetRepository = (*Repository)(nil)

// NewRepository wraps next. ttl bounds how long an entry may serve reads.
func NewRepository(next repository.SnippetRepository, kv KV, ttl time.Duration, log logger.Logger) *Repository {
	return &Repository{next: next, kv: kv, ttl: ttl, logger: log}
}

func (c *Repository) Create(ctx context.Context, snippet *model.Snippet) error {
	return c.next.Create(ctx, snippet)
}

// GetByShortID serves from the cache on a hit and fills it on a miss.
// Not-found results are not cached, and neither is a row that was written
// while it was being loaded.
func (c *Repository) GetByShortID(ctx context.Context, shortID string) (*model.Snippet, error) {
	key := Key(shortID)

	raw, found, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", logger.String("key", key), logger.Error(err))
	}
	if found {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			return e.snippet(), nil
		}
		c.logger.Warn("dropping undecodable cache entry", logger.String("key", key))
		c.invalidate(ctx, shortID)
	}

	version, verr := c.kv.Version(ctx, VersionKey(shortID))
	if verr != nil {
		c.logger.Warn("cache version read failed", logger.String("key", key), logger.Error(verr))
	}

	snippet, err := c.next.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return snippet, nil
	}

	if data, err := json.Marshal(fromSnippet(snippet)); err == nil {
		filled, err := c.kv.SetIfVersion(ctx, key, VersionKey(shortID), string(data), version, c.ttl)
		switch {
		case err != nil:
			c.logger.Warn("cache write failed", logger.String("key", key), logger.Error(err))
		case !filled:
			c.logger.Debug("skipped cache fill for a row written meanwhile", logger.String("key", key))
		}
	}
	return snippet, nil
}

func (c *Repository) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	return c.next.List(ctx, opts)
}

// Update writes through and then drops the cached copy.
func (c *Repository) Update(ctx context.Context, snippet *model.Snippet) error {
	err := c.next.Update(ctx, snippet)
	c.invalidate(ctx, snippet.ShortID)
	return err
}

// Delete writes through and then drops the cached copy.
func (c *Repository) Delete(ctx context.Context, shortID string) (bool, error) {
	removed, err := c.next.Delete(ctx, shortID)
	c.invalidate(ctx, shortID)
	return removed, err
}

func (c *Repository) invalidate(ctx context.Context, shortID string) {
	if err := c.kv.Invalidate(ctx, Key(shortID), VersionKey(shortID), c.ttl); err != nil {
		c.logger.Warn("cache invalidation failed", logger.String("short_id", shortID), logger.Error(err))
	}
}

func fromSnippet(s *model.Snippet) entry {
	return entry{
		ID:        s.ID,
		ShortID:   s.ShortID,
		Name:      s.Name,
		Content:   s.Content,
		Language:  s.Language,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (e entry) snippet() *model.Snippet {
	return &model.Snippet{
		ID:        e.ID,
		ShortID:   e.ShortID,
		Name:      e.Name,
		Content:   e.Content,
		Language:  e.Language,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
