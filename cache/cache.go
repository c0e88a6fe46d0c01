// Package cache stores model-artefact metadata keyed by model identifier.
// A local-disk implementation with atomic-rename writes is the default so
// concurrent graph runs sharing a cache directory never observe a partial
// record; an optional Redis-backed cache satisfies the same interface for
// multi-host deployments (config.Graph selects the backend).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/errs"
)

// Cache stores small JSON-serializable metadata records keyed by model id.
// Artefact bytes themselves are not cached here, only their metadata
// (checksum, local path, fetched-at).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// New returns the cache backend configured on g.
func New(g *config.Graph) (Cache, error) {
	switch g.CacheBackend {
	case config.CacheBackendRedis:
		return newRedisCache(g.RedisAddr), nil
	case config.CacheBackendLocal, "":
		return newDiskCache(g.CacheDir), nil
	default:
		return nil, errs.New("cache", "new", errs.Configuration, fmt.Errorf("unknown cache backend %q", g.CacheBackend))
	}
}

// diskCache stores each key as a file under dir, written via a temp-file +
// rename so concurrent writers never observe a partially written record.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) *diskCache {
	return &diskCache{dir: dir}
}

func (c *diskCache) path(key string) string {
	return filepath.Join(c.dir, keyToFilename(key))
}

func keyToFilename(key string) string {
	safe := make([]byte, 0, len(key))
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			safe = append(safe, byte(r))
		} else {
			safe = append(safe, '_')
		}
	}
	return string(safe) + ".json"
}

func (c *diskCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New("cache", "get", errs.Resource, err)
	}
	return data, true, nil
}

func (c *diskCache) Put(ctx context.Context, key string, value []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errs.New("cache", "put", errs.Resource, err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return errs.New("cache", "put", errs.Resource, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return errs.New("cache", "put", errs.Resource, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.New("cache", "put", errs.Resource, err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return errs.New("cache", "put", errs.Resource, err)
	}
	return nil
}

// redisCache stores each record as a string value at "speechflow:cache:<key>".
type redisCache struct {
	client *redis.Client
}

func newRedisCache(addr string) *redisCache {
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *redisCache) redisKey(key string) string {
	return "speechflow:cache:" + key
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.New("cache", "get", errs.Resource, err)
	}
	return data, true, nil
}

func (c *redisCache) Put(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.redisKey(key), value, 0).Err(); err != nil {
		return errs.New("cache", "put", errs.Resource, err)
	}
	return nil
}

// Record is the metadata shape stored per model artefact.
type Record struct {
	ModelID   string `json:"model_id"`
	Checksum  string `json:"checksum"`
	LocalPath string `json:"local_path"`
	FetchedAt int64  `json:"fetched_at"`
}

// PutRecord JSON-encodes and stores a Record.
func PutRecord(ctx context.Context, c Cache, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.New("cache", "put-record", errs.Configuration, err)
	}
	return c.Put(ctx, rec.ModelID, data)
}

// GetRecord fetches and JSON-decodes a Record, if present.
func GetRecord(ctx context.Context, c Cache, modelID string) (*Record, bool, error) {
	data, ok, err := c.Get(ctx, modelID)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, errs.New("cache", "get-record", errs.Stream, err)
	}
	return &rec, true, nil
}
