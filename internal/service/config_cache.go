package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/cache"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

const apiKeyCacheKey = "openrouter_api_key"

// ConfigCache serves the two lookups on the processing hot path, the
// shared provider API key and the per-user tier/model configuration,
// from time-bounded in-process caches so most requests skip the
// database round trip.
//
// Concurrent misses for the same key may each hit the database; the
// redundant fetches are harmless. What is load-bearing is proactive
// invalidation: administrative key updates and tier changes evict their
// entry synchronously so the very next read sees the new value.
type ConfigCache struct {
	settings    repository.SettingRepository
	users       repository.UserRepository
	fallbackKey string

	apiKeys  *cache.TTL[string]
	userCfgs *cache.TTL[*model.UserModelConfig]

	now    func() time.Time
	logger zerolog.Logger
}

// NewConfigCache builds the cache with independent TTLs for the API key
// and per-user config. A nil now defaults to time.Now.
func NewConfigCache(settings repository.SettingRepository, users repository.UserRepository, fallbackKey string, apiKeyTTL, userCfgTTL time.Duration, now func() time.Time, logger zerolog.Logger) *ConfigCache {
	if now == nil {
		now = time.Now
	}
	return &ConfigCache{
		settings:    settings,
		users:       users,
		fallbackKey: fallbackKey,
		apiKeys:     cache.NewTTL[string](apiKeyTTL, now),
		userCfgs:    cache.NewTTL[*model.UserModelConfig](userCfgTTL, now),
		now:         now,
		logger:      logger.With().Str("service", "ConfigCache").Logger(),
	}
}

// APIKey returns the effective provider key: the administrator-set
// system setting when non-empty, else the environment fallback. An
// empty result is never cached so a configuration repair is picked up
// immediately.
func (c *ConfigCache) APIKey(ctx context.Context) (string, error) {
	if key, ok := c.apiKeys.Get(apiKeyCacheKey); ok {
		return key, nil
	}

	setting, err := c.settings.Get(ctx, model.SettingOpenRouterAPIKey)
	if err != nil {
		return "", fmt.Errorf("resolve provider API key: %w", err)
	}

	key := c.fallbackKey
	source := "env"
	if setting != nil && setting.Value != "" {
		key = setting.Value
		source = "setting"
	}
	if key == "" {
		// Never log the key itself; the source trail is enough to
		// diagnose a missing configuration.
		c.logger.Error().Str("checked", "system_settings, env fallback").Msg("No provider API key resolvable")
		return "", ErrNoAPIKey
	}

	c.apiKeys.Set(apiKeyCacheKey, key)
	c.logger.Debug().Str("source", source).Msg("Provider API key refreshed")
	return key, nil
}

// UserConfig returns the joined user and model configuration row.
func (c *ConfigCache) UserConfig(ctx context.Context, extensionUserID string) (*model.UserModelConfig, error) {
	if cfg, ok := c.userCfgs.Get(extensionUserID); ok {
		return cfg, nil
	}

	cfg, err := c.users.GetUserConfig(ctx, extensionUserID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUserNotFound
	}

	// Self-heal an expired student verification before anything
	// downstream trusts the flag.
	if cfg.User.StudentVerified && !cfg.User.StudentCurrentlyVerified(c.now()) {
		if err := c.users.ClearStudentVerification(ctx, extensionUserID); err != nil {
			c.logger.Error().Err(err).Str("extension_user_id", extensionUserID).Msg("Failed to clear expired student verification")
		}
		cfg.User.StudentVerified = false
	}

	c.userCfgs.Set(extensionUserID, cfg)
	return cfg, nil
}

// InvalidateAPIKey evicts the cached provider key. Called synchronously
// after a successful administrative key update.
func (c *ConfigCache) InvalidateAPIKey() {
	c.apiKeys.Delete(apiKeyCacheKey)
}

// InvalidateUser evicts one user's cached configuration. Called
// synchronously after any tier-affecting mutation so the user's next
// request is billed and modeled at the new tier.
func (c *ConfigCache) InvalidateUser(extensionUserID string) {
	c.userCfgs.Delete(extensionUserID)
}
