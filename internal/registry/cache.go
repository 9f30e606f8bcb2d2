package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"docregistry/internal/hasher"
)

// Cache is a byte-oriented key/value store. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Cached is a read-through cache in front of a Registry.
// Only facts that can never change are cached: existing records and
// resolved hash-to-id mappings. Negative answers always go to the chain.
// Cache faults are logged and never fail a read.
type Cached struct {
	Registry
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCached wraps next with c.
func NewCached(next Registry, c Cache, ttl time.Duration, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{Registry: next, cache: c, ttl: ttl, log: log}
}

type cachedRecord struct {
	Hash      string `json:"hash"`
	CreatedAt int64  `json:"createdAt"`
}

func recordKey(id uint64) string { return "docregistry:record:" + strconv.FormatUint(id, 10) }

func idKey(h hasher.Digest) string { return "docregistry:id:" + h.Hex() }

func (c *Cached) RecordByID(ctx context.Context, id uint64) (Record, error) {
	key := recordKey(id)
	if raw := c.get(ctx, key); raw != nil {
		var cr cachedRecord
		if err := json.Unmarshal(raw, &cr); err == nil {
			if h, err := hasher.Parse(cr.Hash); err == nil {
				return Record{ID: id, DocHash: h, CreatedAtMillis: cr.CreatedAt, Exists: true}, nil
			}
		}
		c.log.Warn("discarding malformed cache entry", slog.String("key", key))
	}

	rec, err := c.Registry.RecordByID(ctx, id)
	if err != nil || !rec.Exists {
		return rec, err
	}
	raw, _ := json.Marshal(cachedRecord{Hash: rec.DocHash.Hex(), CreatedAt: rec.CreatedAtMillis})
	c.set(ctx, key, raw)
	return rec, nil
}

func (c *Cached) IDByHash(ctx context.Context, hash hasher.Digest) (uint64, bool, error) {
	key := idKey(hash)
	if raw := c.get(ctx, key); raw != nil {
		if id, err := strconv.ParseUint(string(raw), 10, 64); err == nil && id > 0 {
			return id, true, nil
		}
		c.log.Warn("discarding malformed cache entry", slog.String("key", key))
	}

	id, ok, err := c.Registry.IDByHash(ctx, hash)
	if err != nil || !ok {
		return id, ok, err
	}
	c.set(ctx, key, []byte(strconv.FormatUint(id, 10)))
	return id, true, nil
}

func (c *Cached) get(ctx context.Context, key string) []byte {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("registry cache read failed", slog.String("key", key), slog.Any("error", err))
		return nil
	}
	return raw
}

func (c *Cached) set(ctx context.Context, key string, val []byte) {
	if err := c.cache.Set(ctx, key, val, c.ttl); err != nil {
		c.log.Warn("registry cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
