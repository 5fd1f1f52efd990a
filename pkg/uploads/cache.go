package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultSettingsKey = "chatflow:upload_settings"
	DefaultSettingsTTL = 5 * time.Minute
)

// CachedSettings keeps the settings of source in Redis for ttl. When Redis
// is unavailable the source is read directly.
type CachedSettings struct {
	client redis.UniversalClient
	source SettingsProvider
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSettings(client redis.UniversalClient, source SettingsProvider, ttl time.Duration, logger *slog.Logger) *CachedSettings {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}

	return &CachedSettings{
		client: client,
		source: source,
		key:    DefaultSettingsKey,
		ttl:    ttl,
		logger: logger.With("module", "upload_settings"),
	}
}

func (c *CachedSettings) Settings(ctx context.Context) (Settings, error) {
	cached, err := c.client.Get(ctx, c.key).Bytes()

	switch {
	case err == nil:
		var settings Settings
		if err := json.Unmarshal(cached, &settings); err == nil {
			return settings, nil
		}

		c.logger.WarnContext(ctx, "Discarding undecodable cached upload settings", "key", c.key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "Upload settings cache unavailable", "error", err)

		return c.source.Settings(ctx)
	}

	settings, err := c.source.Settings(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload settings: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Failed to cache upload settings", "error", err)
	}

	return settings, nil
}

// Invalidate drops the cached copy so the next read goes to the source.
func (c *CachedSettings) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate upload settings: %w", err)
	}

	return nil
}
