// Package checkpoint tracks which telemetry files have already been
// evaluated, so the watcher and batch mode never process a file twice.
// The registry is Redis-backed; multiple workers coordinate through
// atomic claims.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAlreadyClaimed means another worker holds the claim for this file.
var ErrAlreadyClaimed = errors.New("file already claimed")

// RedisConfig configures the Redis registry.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all registry keys
	Prefix string

	// ClaimTTL is how long an in-progress claim survives before another
	// worker may retry the file (0 = claims never expire)
	ClaimTTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "railtrace:runs:",
		ClaimTTL: 24 * time.Hour,
		Timeout:  5 * time.Second,
	}
}

// Registry is a Redis-backed processed-file registry.
type Registry struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRegistry connects to Redis and verifies the connection.
func NewRegistry(cfg RedisConfig) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	return &Registry{cfg: cfg, client: client}, nil
}

func (r *Registry) key(path string) string {
	return r.cfg.Prefix + sanitizeKey(path)
}

func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Claim atomically marks a file as in-progress. It fails with
// ErrAlreadyClaimed when another worker got there first. The claim
// expires after ClaimTTL so a crashed worker does not wedge the file.
func (r *Registry) Claim(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	ok, err := r.client.SetNX(ctx, r.key(path), "processing", r.cfg.ClaimTTL).Result()
	if err != nil {
		return fmt.Errorf("claim %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, path)
	}
	return nil
}

// MarkDone records a file as fully evaluated. Done markers do not
// expire.
func (r *Registry) MarkDone(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.client.Set(ctx, r.key(path), "done", 0).Err()
}

// Release drops an in-progress claim so the file can be retried. A
// done marker is left untouched.
func (r *Registry) Release(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// Only delete our own "processing" marker.
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == "processing" then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, r.client, []string{r.key(path)}).Result()
	return err
}

// Seen reports whether the file is claimed or done.
func (r *Registry) Seen(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(path)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func (r *Registry) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Registry) Close() error {
	return r.client.Close()
}
