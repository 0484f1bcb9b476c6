package service

import (
	"context"
	"strings"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SettingsService exposes the administrative view of system_settings.
// Updates that affect the processing hot path evict the configuration
// cache before returning, so the change is visible on the next request.
type SettingsService interface {
	List(ctx context.Context) ([]model.SystemSetting, error)
	Update(ctx context.Context, key, value, adminEmail string) (*model.SystemSetting, error)
}

type settingsService struct {
	repo    repository.SettingRepository
	actions repository.AdminActionRepository
	cache   *ConfigCache
	logger  zerolog.Logger
}

// NewSettingsService creates a new SettingsService with a scoped logger.
func NewSettingsService(repo repository.SettingRepository, actions repository.AdminActionRepository, cache *ConfigCache, logger zerolog.Logger) SettingsService {
	return &settingsService{
		repo:    repo,
		actions: actions,
		cache:   cache,
		logger:  logger.With().Str("service", "SettingsService").Logger(),
	}
}

func (s *settingsService) List(ctx context.Context) ([]model.SystemSetting, error) {
	settings, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list settings")
		return nil, err
	}
	return settings, nil
}

func (s *settingsService) Update(ctx context.Context, key, value, adminEmail string) (*model.SystemSetting, error) {
	setting, err := s.repo.Update(ctx, key, value, adminEmail)
	if err != nil {
		s.logger.Error().Err(err).Str("setting_key", key).Msg("Failed to update setting")
		return nil, err
	}
	if setting == nil {
		return nil, ErrSettingNotFound
	}

	// Proactive eviction is a correctness requirement, not an
	// optimization: the next processing request must see the new key.
	if key == model.SettingOpenRouterAPIKey {
		s.cache.InvalidateAPIKey()
	}

	if err := s.actions.Insert(ctx, adminEmail, "UPDATE_SETTING", "system_settings", map[string]string{"setting_key": key}); err != nil {
		s.logger.Error().Err(err).Str("setting_key", key).Msg("Failed to record admin action")
	}

	// The value may be a secret; log only the key.
	s.logger.Info().Str("setting_key", key).Str("updated_by", adminEmail).Msg("Setting updated")
	return setting, nil
}

// RequiresOwnAPIKey reports whether users of the tier must bring their
// own provider key, defaulting to true when the flag is unset.
func RequiresOwnAPIKey(ctx context.Context, repo repository.SettingRepository, tier model.Tier) (bool, error) {
	setting, err := repo.Get(ctx, model.SettingRequireAPIKeyPrefix+string(tier))
	if err != nil {
		return true, err
	}
	if setting == nil {
		return true, nil
	}
	return strings.EqualFold(setting.Value, "true"), nil
}
