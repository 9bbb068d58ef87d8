package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/vilmosmisota/sportapp/core/tenant"
)

const settingsKeyPrefix = "tenant:settings:"

type settingsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ tenant.SettingsCache = (*settingsCache)(nil)

// NewSettingsCache stores tenant settings as JSON, expiring after ttl.
func NewSettingsCache(rdb *redis.Client, ttl time.Duration) tenant.SettingsCache {
	return &settingsCache{rdb: rdb, ttl: ttl}
}

func settingsKey(tenantID string) string {
	return settingsKeyPrefix + tenantID
}

func (c *settingsCache) Get(ctx context.Context, tenantID string) (tenant.Settings, bool, error) {
	data, err := c.rdb.Get(ctx, settingsKey(tenantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return tenant.Settings{}, false, nil
		}
		return tenant.Settings{}, false, errors.Wrap(err, "getting settings")
	}

	var s tenant.Settings
	if err = json.Unmarshal(data, &s); err != nil {
		return tenant.Settings{}, false, errors.Wrap(err, "decoding settings")
	}
	s.TenantID = tenantID // not serialized
	return s, true, nil
}

func (c *settingsCache) Set(ctx context.Context, s tenant.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding settings")
	}
	return errors.Wrap(c.rdb.Set(ctx, settingsKey(s.TenantID), data, c.ttl).Err(), "setting settings")
}

func (c *settingsCache) Delete(ctx context.Context, tenantID string) error {
	return errors.Wrap(c.rdb.Del(ctx, settingsKey(tenantID)).Err(), "deleting settings")
}
