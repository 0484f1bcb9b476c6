package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const modelConfigColumns = `
	tier, model_id, model_name, max_output_tokens,
	cost_per_1m_input, cost_per_1m_output, context_window,
	updated_by, updated_at`

// ModelConfigRepository accesses the per-tier model configuration table.
type ModelConfigRepository interface {
	// GetByTier returns (nil, nil) when the tier has no row.
	GetByTier(ctx context.Context, tier model.Tier) (*model.ModelConfig, error)
	List(ctx context.Context) ([]model.ModelConfig, error)
	// UpdateForTier returns (nil, nil) when the tier has no row.
	UpdateForTier(ctx context.Context, tier model.Tier, cfg model.ModelConfig, updatedBy string) (*model.ModelConfig, error)
}

type modelConfigRepo struct {
	pool *pgxpool.Pool
}

// NewModelConfigRepo creates a new ModelConfigRepository.
func NewModelConfigRepo(pool *pgxpool.Pool) ModelConfigRepository {
	return &modelConfigRepo{pool: pool}
}

func scanModelConfig(row pgx.Row) (*model.ModelConfig, error) {
	var mc model.ModelConfig
	err := row.Scan(
		&mc.Tier, &mc.ModelID, &mc.ModelName, &mc.MaxOutputTokens,
		&mc.CostPer1MInput, &mc.CostPer1MOutput, &mc.ContextWindow,
		&mc.UpdatedBy, &mc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &mc, nil
}

func (r *modelConfigRepo) GetByTier(ctx context.Context, tier model.Tier) (*model.ModelConfig, error) {
	q := `SELECT ` + modelConfigColumns + ` FROM model_configs WHERE tier = $1`
	mc, err := scanModelConfig(r.pool.QueryRow(ctx, q, tier))
	if err != nil {
		return nil, fmt.Errorf("fetch model config for tier %s: %w", tier, err)
	}
	return mc, nil
}

func (r *modelConfigRepo) List(ctx context.Context) ([]model.ModelConfig, error) {
	q := `SELECT ` + modelConfigColumns + `
		FROM model_configs
		ORDER BY CASE tier
			WHEN 'free' THEN 1
			WHEN 'trial' THEN 2
			WHEN 'premium' THEN 3
			WHEN 'unlimited' THEN 4
			WHEN 'managed' THEN 5
			ELSE 6
		END`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list model configs: %w", err)
	}
	defer rows.Close()

	var configs []model.ModelConfig
	for rows.Next() {
		var mc model.ModelConfig
		if err := rows.Scan(
			&mc.Tier, &mc.ModelID, &mc.ModelName, &mc.MaxOutputTokens,
			&mc.CostPer1MInput, &mc.CostPer1MOutput, &mc.ContextWindow,
			&mc.UpdatedBy, &mc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan model config row: %w", err)
		}
		configs = append(configs, mc)
	}
	return configs, rows.Err()
}

func (r *modelConfigRepo) UpdateForTier(ctx context.Context, tier model.Tier, cfg model.ModelConfig, updatedBy string) (*model.ModelConfig, error) {
	q := `
		UPDATE model_configs
		SET model_id = $1, model_name = $2, max_output_tokens = $3,
		    cost_per_1m_input = $4, cost_per_1m_output = $5, context_window = $6,
		    updated_by = $7, updated_at = NOW()
		WHERE tier = $8
		RETURNING ` + modelConfigColumns
	mc, err := scanModelConfig(r.pool.QueryRow(ctx, q,
		cfg.ModelID, cfg.ModelName, cfg.MaxOutputTokens,
		cfg.CostPer1MInput, cfg.CostPer1MOutput, cfg.ContextWindow,
		updatedBy, tier,
	))
	if err != nil {
		return nil, fmt.Errorf("update model config for tier %s: %w", tier, err)
	}
	return mc, nil
}
