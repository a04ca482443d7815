package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

type RedisLocationCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocationCache(rdb *redis.Client, ttl time.Duration) *RedisLocationCache {
	return &RedisLocationCache{rdb: rdb, ttl: ttl}
}

func lastLocationKey(alertID string) string {
	return fmt.Sprintf("alert:%s:last_location", alertID)
}

func lastLocationOrderKey(alertID string) string {
	return fmt.Sprintf("alert:%s:last_location:order", alertID)
}

// sampleOrder sorts lexicographically in (CreatedAt, ID) order.
func sampleOrder(s model.LocationSample) string {
	return s.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000") + "|" + s.ID
}

// KEYS: value, order. ARGV: body, order, ttl (ms, 0 keeps forever).
var storeNewerScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and cur >= ARGV[2] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// StoreLast caches sample unless a newer sample for the same alert is
// already cached.
func (c *RedisLocationCache) StoreLast(ctx context.Context, sample model.LocationSample) error {
	sample.CreatedAt = sample.CreatedAt.UTC()
	b, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return storeNewerScript.Run(ctx, c.rdb,
		[]string{lastLocationKey(sample.AlertID), lastLocationOrderKey(sample.AlertID)},
		b, sampleOrder(sample), c.ttl.Milliseconds(),
	).Err()
}

func (c *RedisLocationCache) Last(ctx context.Context, alertID string) (*model.LocationSample, error) {
	raw, err := c.rdb.Get(ctx, lastLocationKey(alertID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sample model.LocationSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, fmt.Errorf("decode cached location: %w", err)
	}
	return &sample, nil
}
