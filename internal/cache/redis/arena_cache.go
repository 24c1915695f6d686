package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soliseum/arenad/internal/domain"
)

// arenaTTL keeps snapshots short-lived; the database is authoritative and
// every mutation rewrites or invalidates the entry anyway.
const arenaTTL = 5 * time.Minute

// ArenaCache implements domain.ArenaCache using JSON-serialized arena
// snapshots under arena:{id} keys.
type ArenaCache struct {
	rdb *redis.Client
}

// NewArenaCache creates an ArenaCache backed by the given Client.
func NewArenaCache(c *Client) *ArenaCache {
	return &ArenaCache{rdb: c.Underlying()}
}

func arenaKey(id string) string { return "arena:" + id }

// Set stores an arena snapshot with a 5-minute TTL.
func (ac *ArenaCache) Set(ctx context.Context, arena domain.Arena) error {
	data, err := json.Marshal(arena)
	if err != nil {
		return fmt.Errorf("redis: marshal arena %s: %w", arena.ID, err)
	}
	if err := ac.rdb.Set(ctx, arenaKey(arena.ID), data, arenaTTL).Err(); err != nil {
		return fmt.Errorf("redis: set arena %s: %w", arena.ID, err)
	}
	return nil
}

// Get retrieves an arena snapshot by id. It returns domain.ErrNotFound when
// the key does not exist.
func (ac *ArenaCache) Get(ctx context.Context, id string) (domain.Arena, error) {
	data, err := ac.rdb.Get(ctx, arenaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Arena{}, domain.ErrNotFound
		}
		return domain.Arena{}, fmt.Errorf("redis: get arena %s: %w", id, err)
	}

	var arena domain.Arena
	if err := json.Unmarshal(data, &arena); err != nil {
		return domain.Arena{}, fmt.Errorf("redis: unmarshal arena %s: %w", id, err)
	}
	return arena, nil
}

// Invalidate removes an arena snapshot from the cache.
func (ac *ArenaCache) Invalidate(ctx context.Context, id string) error {
	if err := ac.rdb.Del(ctx, arenaKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate arena %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ArenaCache = (*ArenaCache)(nil)
