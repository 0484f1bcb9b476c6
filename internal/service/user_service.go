package service

import (
	"context"
	"fmt"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// UserModel is what the extension needs to configure itself for a
// user: their tier, the model assigned to it, and whether they must
// supply their own provider key.
type UserModel struct {
	User           *model.User        `json:"user"`
	Model          *model.ModelConfig `json:"model"`
	RequiresAPIKey bool               `json:"requires_api_key"`
}

type UserService struct {
	users    repository.UserRepository
	usage    *UsageService
	settings repository.SettingRepository
	cache    *ConfigCache
	logger   zerolog.Logger
}

func NewUserService(users repository.UserRepository, usage *UsageService, settings repository.SettingRepository, cache *ConfigCache, logger zerolog.Logger) *UserService {
	return &UserService{
		users:    users,
		usage:    usage,
		settings: settings,
		cache:    cache,
		logger:   logger.With().Str("service", "UserService").Logger(),
	}
}

// GetOrCreate registers an extension install on first contact and is a
// plain lookup afterwards.
func (s *UserService) GetOrCreate(ctx context.Context, extensionUserID string, email *string, tier model.Tier, planName *string) (*model.User, error) {
	if tier == "" {
		tier = model.TierFree
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier %q", tier)
	}
	user, err := s.users.GetOrCreate(ctx, extensionUserID, email, tier, planName)
	if err != nil {
		s.logger.Error().Err(err).Str("extension_user_id", extensionUserID).Msg("Failed to get or create user")
		return nil, err
	}
	return user, nil
}

// UpdateTier changes a user's tier directly. The cached user config is
// evicted so the next request observes the new tier immediately.
func (s *UserService) UpdateTier(ctx context.Context, extensionUserID string, tier model.Tier, planName, email *string) (*model.User, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("invalid tier %q", tier)
	}
	user, err := s.users.UpdateTier(ctx, extensionUserID, tier, planName, email)
	if err != nil {
		s.logger.Error().Err(err).Str("extension_user_id", extensionUserID).Msg("Failed to update tier")
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.cache.InvalidateUser(extensionUserID)
	s.logger.Info().
		Str("extension_user_id", extensionUserID).
		Str("tier", string(tier)).
		Msg("User tier updated")
	return user, nil
}

// GetModel returns the user's tier, assigned model and whether the
// extension must collect the user's own provider key. The flag comes
// from the require_api_key_for_<tier> setting and defaults to true
// when the setting is absent.
func (s *UserService) GetModel(ctx context.Context, extensionUserID string) (*UserModel, error) {
	cfg, err := s.users.GetUserConfig(ctx, extensionUserID)
	if err != nil {
		s.logger.Error().Err(err).Str("extension_user_id", extensionUserID).Msg("Failed to fetch user config")
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUserNotFound
	}

	requires, err := RequiresOwnAPIKey(ctx, s.settings, cfg.User.Tier)
	if err != nil {
		s.logger.Warn().Err(err).Str("tier", string(cfg.User.Tier)).Msg("Failed to read API key requirement, defaulting to required")
		requires = true
	}

	return &UserModel{
		User:           &cfg.User,
		Model:          cfg.Model,
		RequiresAPIKey: requires,
	}, nil
}

// TrackUsage records client-reported usage for an existing user.
// BYOK-tier extensions call the provider themselves, so their videos,
// tokens and cost arrive through this path instead of the processing
// one.
func (s *UserService) TrackUsage(ctx context.Context, extensionUserID string, videosProcessed, tokensUsed int64, costIncurred float64) error {
	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return s.usage.Track(ctx, extensionUserID, videosProcessed, tokensUsed, costIncurred)
}

// Stats returns the user's usage aggregates.
func (s *UserService) Stats(ctx context.Context, extensionUserID string) (*model.UsageStats, error) {
	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return s.usage.Stats(ctx, extensionUserID)
}
