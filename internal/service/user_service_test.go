package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app/internal/model"
)

type userFixture struct {
	svc       *UserService
	users     *fakeUserRepo
	settings  *fakeSettingRepo
	usageRepo *fakeUsageRepo
}

func newUserFixture() *userFixture {
	users := newFakeUserRepo()
	settings := newFakeSettingRepo()
	usageRepo := &fakeUsageRepo{}
	clk := newFakeClock(time.Unix(1_700_000_000, 0))
	cache := NewConfigCache(settings, users, "sk-env", 5*time.Minute, 2*time.Minute, clk.Now, zerolog.Nop())
	usage := NewUsageService(usageRepo, clk.Now, zerolog.Nop())
	return &userFixture{
		svc:       NewUserService(users, usage, settings, cache, zerolog.Nop()),
		users:     users,
		settings:  settings,
		usageRepo: usageRepo,
	}
}

func TestGetOrCreateDefaultsToFree(t *testing.T) {
	f := newUserFixture()

	u, err := f.svc.GetOrCreate(context.Background(), "u1", nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, u.Tier)
	assert.Equal(t, "u1", u.ExtensionUserID)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	f := newUserFixture()

	first, err := f.svc.GetOrCreate(context.Background(), "u1", strPtr("a@b.c"), model.TierPremium, nil)
	require.NoError(t, err)

	// Second contact does not overwrite the existing row.
	again, err := f.svc.GetOrCreate(context.Background(), "u1", nil, model.TierFree, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.TierPremium, again.Tier)
}

func TestGetOrCreateRejectsInvalidTier(t *testing.T) {
	f := newUserFixture()

	_, err := f.svc.GetOrCreate(context.Background(), "u1", nil, "platinum", nil)
	assert.Error(t, err)
	assert.Nil(t, f.users.snapshot("u1"))
}

func TestUpdateTierUnknownUser(t *testing.T) {
	f := newUserFixture()

	_, err := f.svc.UpdateTier(context.Background(), "ghost", model.TierPremium, nil, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateTierEvictsCachedConfig(t *testing.T) {
	f := newUserFixture()
	f.users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierFree})

	cache := NewConfigCache(f.settings, f.users, "sk-env", 5*time.Minute, 2*time.Minute, nil, zerolog.Nop())
	f.svc.cache = cache

	cfg, err := cache.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, cfg.User.Tier)

	_, err = f.svc.UpdateTier(context.Background(), "u1", model.TierManaged, strPtr("Monthly - Managed"), nil)
	require.NoError(t, err)

	cfg, err = cache.UserConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.TierManaged, cfg.User.Tier)
}

func TestGetModelReturnsAssignedModel(t *testing.T) {
	f := newUserFixture()
	f.users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierManaged})
	f.users.modelsByTier[model.TierManaged] = &model.ModelConfig{
		Tier:    model.TierManaged,
		ModelID: "google/gemini-2.0-flash-001",
	}
	f.settings.set(model.SettingRequireAPIKeyPrefix+"managed", "false")

	um, err := f.svc.GetModel(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.0-flash-001", um.Model.ModelID)
	assert.False(t, um.RequiresAPIKey)
}

func TestGetModelDefaultsToRequiringKey(t *testing.T) {
	f := newUserFixture()
	f.users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierPremium})

	um, err := f.svc.GetModel(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, um.Model)
	// No require_api_key_for_premium setting exists, so the safe
	// default is to demand the user's own key.
	assert.True(t, um.RequiresAPIKey)
}

func TestGetModelUnknownUser(t *testing.T) {
	f := newUserFixture()

	_, err := f.svc.GetModel(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTrackUsageWritesReportedTotals(t *testing.T) {
	f := newUserFixture()
	f.users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierPremium})

	require.NoError(t, f.svc.TrackUsage(context.Background(), "u1", 2, 5000, 0.004))

	writes := f.usageRepo.writes
	require.Len(t, writes, 1)
	assert.Equal(t, "u1", writes[0].extID)
	assert.EqualValues(t, 2, writes[0].videosDelta)
	assert.EqualValues(t, 5000, writes[0].tokensUsed)
	assert.EqualValues(t, 1, writes[0].apiCalls)
	assert.InDelta(t, 0.004, writes[0].costIncurred, 1e-9)
}

func TestTrackUsageDefaultsToOneVideo(t *testing.T) {
	f := newUserFixture()
	f.users.put(&model.User{ExtensionUserID: "u1", Tier: model.TierUnlimited})

	require.NoError(t, f.svc.TrackUsage(context.Background(), "u1", 0, 0, 0))

	require.Len(t, f.usageRepo.writes, 1)
	assert.EqualValues(t, 1, f.usageRepo.writes[0].videosDelta)
	assert.EqualValues(t, 0, f.usageRepo.writes[0].tokensUsed)
}

func TestTrackUsageUnknownUser(t *testing.T) {
	f := newUserFixture()

	err := f.svc.TrackUsage(context.Background(), "ghost", 1, 100, 0.001)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.usageRepo.writes)
}

func TestStatsUnknownUser(t *testing.T) {
	f := newUserFixture()

	_, err := f.svc.Stats(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
