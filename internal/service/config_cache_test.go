package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigCache(settings *fakeSettingRepo, users *fakeUserRepo, fallback string, clk *fakeClock) *ConfigCache {
	return NewConfigCache(settings, users, fallback, 5*time.Minute, 2*time.Minute, clk.Now, zerolog.Nop())
}

func TestAPIKeyPrefersSettingOverFallback(t *testing.T) {
	settings := newFakeSettingRepo()
	settings.set(model.SettingOpenRouterAPIKey, "sk-setting")
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(settings, newFakeUserRepo(), "sk-env", clk)

	key, err := cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-setting", key)
}

func TestAPIKeyFallsBackToEnv(t *testing.T) {
	settings := newFakeSettingRepo()
	settings.set(model.SettingOpenRouterAPIKey, "")
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(settings, newFakeUserRepo(), "sk-env", clk)

	key, err := cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)
}

func TestAPIKeyMissingEverywhereFailsClosed(t *testing.T) {
	settings := newFakeSettingRepo()
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(settings, newFakeUserRepo(), "", clk)

	_, err := cc.APIKey(context.Background())
	assert.ErrorIs(t, err, ErrNoAPIKey)

	// The miss must not be cached: once the setting is repaired the
	// next read sees it without any eviction.
	settings.set(model.SettingOpenRouterAPIKey, "sk-new")
	key, err := cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-new", key)
}

func TestAPIKeyCachedWithinTTL(t *testing.T) {
	settings := newFakeSettingRepo()
	settings.set(model.SettingOpenRouterAPIKey, "sk-1")
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(settings, newFakeUserRepo(), "", clk)

	_, err := cc.APIKey(context.Background())
	require.NoError(t, err)
	calls := settings.getCalls

	_, err = cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, settings.getCalls)

	clk.Advance(6 * time.Minute)
	_, err = cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls+1, settings.getCalls)
}

func TestAPIKeyInvalidationBeatsTTL(t *testing.T) {
	settings := newFakeSettingRepo()
	settings.set(model.SettingOpenRouterAPIKey, "")
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(settings, newFakeUserRepo(), "sk-env", clk)

	key, err := cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	// Admin sets the key; eviction happens synchronously, no TTL wait.
	settings.set(model.SettingOpenRouterAPIKey, "sk-new")
	cc.InvalidateAPIKey()

	key, err = cc.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-new", key)
}

func TestUserConfigUnknownUser(t *testing.T) {
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(newFakeSettingRepo(), newFakeUserRepo(), "", clk)

	_, err := cc.UserConfig(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserConfigInvalidationAfterTierChange(t *testing.T) {
	users := newFakeUserRepo()
	users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierFree})
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(newFakeSettingRepo(), users, "", clk)

	cfg, err := cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, cfg.User.Tier)

	// The tier changes in the database; the stale entry is still live.
	_, err = users.UpdateTier(context.Background(), "u1", model.TierManaged, nil, nil)
	require.NoError(t, err)

	cc.InvalidateUser("u1")
	cfg, err = cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.TierManaged, cfg.User.Tier)
}

func TestUserConfigCachedWithinTTL(t *testing.T) {
	users := newFakeUserRepo()
	users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierManaged})
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(newFakeSettingRepo(), users, "", clk)

	_, err := cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	_, err = cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, users.getConfigCalls)

	clk.Advance(3 * time.Minute)
	_, err = cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, users.getConfigCalls)
}

func TestUserConfigClearsExpiredStudentVerification(t *testing.T) {
	expired := time.Unix(500, 0)
	users := newFakeUserRepo()
	users.put(&model.User{
		ExtensionUserID:              "u1",
		Tier:                         model.TierPremium,
		StudentVerified:              true,
		StudentVerificationExpiresAt: &expired,
	})
	clk := newFakeClock(time.Unix(1000, 0))
	cc := newTestConfigCache(newFakeSettingRepo(), users, "", clk)

	cfg, err := cc.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, cfg.User.StudentVerified)
	assert.Equal(t, []string{"u1"}, users.clearedStudent)
}
