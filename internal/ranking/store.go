// Package ranking holds the shared ranked-set store used by every component
// of the reel engine, and the key layout of the state kept in it.
package ranking

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or sorted-set member does not exist.
var ErrNotFound = errors.New("ranking: not found")

// Member is a sorted-set entry.
type Member struct {
	ID    string
	Score float64
}

// Store is the narrow interface every component uses to reach the ranking
// state. Sorted-set ranges are rank based; RevRange is descending by score.
type Store interface {
	ZAdd(ctx context.Context, key string, members ...Member) error
	ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	// ReplaceSet swaps the full contents of a plain set in one transaction.
	ReplaceSet(ctx context.Context, key string, members []string) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
}
