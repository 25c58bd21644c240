package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunGuard is a distributed mutex around the daily pipeline's run-guard
// invariant. The
// SQLite single-running-row check in StartAnalysisRun already enforces
// this within one process; RunGuard additionally protects against two
// orchestrator processes racing to start a run (e.g. a manual trigger
// arriving while a cron-scheduled run is mid-flight on another host).
type RunGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRunGuard wires a RunGuard against a redis client.
func NewRunGuard(client *redis.Client, ttl time.Duration) *RunGuard {
	return &RunGuard{client: client, key: "homeiq:analysis-run:lock", ttl: ttl}
}

// Acquire attempts to take the lock, returning false (not an error) if
// another run already holds it; the caller should treat that as
// ErrRunAlreadyInProgress.
func (g *RunGuard) Acquire(ctx context.Context, runID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key, runID, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops the lock. It is a best-effort fire-and-forget cleanup: a
// stale lock still expires via its TTL.
func (g *RunGuard) Release(ctx context.Context, runID string) error {
	held, err := g.client.Get(ctx, g.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	if held != runID {
		return nil
	}
	return g.client.Del(ctx, g.key).Err()
}

// Renew extends the lock's TTL for a long-running phase, preventing a
// slow phase from letting the lock expire out from under it.
func (g *RunGuard) Renew(ctx context.Context, runID string) error {
	held, err := g.client.Get(ctx, g.key).Result()
	if err != nil {
		return err
	}
	if held != runID {
		return nil
	}
	return g.client.Expire(ctx, g.key, g.ttl).Err()
}
