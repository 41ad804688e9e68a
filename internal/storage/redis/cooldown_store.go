// Package redis provides a Redis-backed cooldown store for
// deployments that want response throttling off the primary database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// recordTTL bounds how long a cooldown record outlives its window so
// zero-cooldown entities do not accumulate keys forever.
const recordTTL = 24 * time.Hour

var _ storage.CooldownStore = (*Store)(nil)

// tryMarkScript performs the compare-and-set in a single atomic step.
// KEYS[1] is the cooldown key; ARGV[1] is the new timestamp in unix
// milliseconds, ARGV[2] the threshold before which a previous response
// no longer blocks, ARGV[3] the key TTL in milliseconds.
var tryMarkScript = goredis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing and tonumber(existing) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Store implements storage.CooldownStore on a Redis client.
type Store struct {
	client *goredis.Client
}

// NewStore connects to Redis using a standard redis:// URL and
// verifies the connection before returning.
func NewStore(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("redis: url is required")
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to parse url: %w", err)
	}

	client := goredis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return &Store{client: client}, nil
}

// GetCooldown returns the last recorded response time for the
// entity/context pair, or ErrNotFound when none exists. Records expire
// with their window, so absence means the cooldown has elapsed.
func (s *Store) GetCooldown(ctx context.Context, entityID, contextKey string) (*types.CooldownRecord, error) {
	if entityID == "" || contextKey == "" {
		return nil, storage.ErrInvalidInput
	}

	value, err := s.client.Get(ctx, cooldownKey(entityID, contextKey)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: cooldown %s/%s", storage.ErrNotFound, entityID, contextKey)
		}
		return nil, fmt.Errorf("redis: failed to load cooldown: %w", err)
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: malformed cooldown record %q: %w", value, err)
	}

	return &types.CooldownRecord{
		EntityID:       entityID,
		ContextKey:     contextKey,
		LastResponseAt: time.UnixMilli(millis).UTC(),
	}, nil
}

// TryMarkResponded records a response timestamp if and only if no
// response was recorded inside the cooldown window. The Lua script
// makes the read-compare-write atomic on the server, so concurrent
// callers for the same entity and context get exactly one true.
func (s *Store) TryMarkResponded(ctx context.Context, entityID, contextKey string, cooldown time.Duration, now time.Time) (bool, error) {
	if entityID == "" || contextKey == "" {
		return false, storage.ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	threshold := now.Add(-cooldown)

	ttlMillis := cooldown.Milliseconds()
	if ttlMillis <= 0 {
		ttlMillis = recordTTL.Milliseconds()
	}

	result, err := tryMarkScript.Run(ctx, s.client,
		[]string{cooldownKey(entityID, contextKey)},
		now.UnixMilli(), threshold.UnixMilli(), ttlMillis,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: failed to mark response: %w", err)
	}
	return result == 1, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func cooldownKey(entityID, contextKey string) string {
	return fmt.Sprintf("cooldown:%s:%s", entityID, contextKey)
}
