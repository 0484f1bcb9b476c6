package service

import (
	"context"
	"fmt"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// ModelService resolves tiers to model configurations and carries the
// administrative edit surface for the model_configs table.
type ModelService interface {
	// Resolve returns the model configuration for a tier or
	// ErrModelNotFound. There is deliberately no default: silently
	// using wrong pricing corrupts the cost ledger.
	Resolve(ctx context.Context, tier model.Tier) (*model.ModelConfig, error)
	List(ctx context.Context) ([]model.ModelConfig, error)
	UpdateForTier(ctx context.Context, tier model.Tier, cfg model.ModelConfig, adminEmail string) (*model.ModelConfig, error)
}

type modelService struct {
	repo    repository.ModelConfigRepository
	actions repository.AdminActionRepository
	logger  zerolog.Logger
}

// NewModelService creates a new ModelService with a scoped logger.
func NewModelService(repo repository.ModelConfigRepository, actions repository.AdminActionRepository, logger zerolog.Logger) ModelService {
	return &modelService{
		repo:    repo,
		actions: actions,
		logger:  logger.With().Str("service", "ModelService").Logger(),
	}
}

func (s *modelService) Resolve(ctx context.Context, tier model.Tier) (*model.ModelConfig, error) {
	mc, err := s.repo.GetByTier(ctx, tier)
	if err != nil {
		s.logger.Error().Err(err).Str("tier", string(tier)).Msg("Failed to fetch model config")
		return nil, err
	}
	if mc == nil {
		// A paid tier without a model row is a configuration defect
		// worth loud logging, not quiet default substitution.
		s.logger.Error().Str("tier", string(tier)).Msg("No model configured for tier")
		return nil, fmt.Errorf("tier %s: %w", tier, ErrModelNotFound)
	}
	return mc, nil
}

func (s *modelService) List(ctx context.Context) ([]model.ModelConfig, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list model configs")
		return nil, err
	}
	return configs, nil
}

func (s *modelService) UpdateForTier(ctx context.Context, tier model.Tier, cfg model.ModelConfig, adminEmail string) (*model.ModelConfig, error) {
	updated, err := s.repo.UpdateForTier(ctx, tier, cfg, adminEmail)
	if err != nil {
		s.logger.Error().Err(err).Str("tier", string(tier)).Msg("Failed to update model config")
		return nil, err
	}
	if updated == nil {
		return nil, ErrModelConfigTierMissing
	}

	if err := s.actions.Insert(ctx, adminEmail, "UPDATE_MODEL", "model_configs", map[string]string{
		"tier":     string(tier),
		"model_id": cfg.ModelID,
	}); err != nil {
		s.logger.Error().Err(err).Str("tier", string(tier)).Msg("Failed to record admin action")
	}

	s.logger.Info().Str("tier", string(tier)).Str("model_id", cfg.ModelID).Msg("Model config updated")
	return updated, nil
}
