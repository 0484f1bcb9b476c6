package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingRepository accesses the system_settings key/value table.
type SettingRepository interface {
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) (*model.SystemSetting, error)
	List(ctx context.Context) ([]model.SystemSetting, error)
	// Update returns (nil, nil) when the key does not exist; settings
	// are seeded at deploy time, not created through this path.
	Update(ctx context.Context, key, value, updatedBy string) (*model.SystemSetting, error)
}

type settingRepo struct {
	pool *pgxpool.Pool
}

// NewSettingRepo creates a new SettingRepository.
func NewSettingRepo(pool *pgxpool.Pool) SettingRepository {
	return &settingRepo{pool: pool}
}

func (r *settingRepo) Get(ctx context.Context, key string) (*model.SystemSetting, error) {
	const q = `
		SELECT setting_key, setting_value, description, updated_by, updated_at
		FROM system_settings
		WHERE setting_key = $1`
	var s model.SystemSetting
	err := r.pool.QueryRow(ctx, q, key).Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch setting %s: %w", key, err)
	}
	return &s, nil
}

func (r *settingRepo) List(ctx context.Context) ([]model.SystemSetting, error) {
	const q = `
		SELECT setting_key, setting_value, description, updated_by, updated_at
		FROM system_settings
		ORDER BY setting_key`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []model.SystemSetting
	for rows.Next() {
		var s model.SystemSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (r *settingRepo) Update(ctx context.Context, key, value, updatedBy string) (*model.SystemSetting, error) {
	const q = `
		UPDATE system_settings
		SET setting_value = $1, updated_by = $2, updated_at = NOW()
		WHERE setting_key = $3
		RETURNING setting_key, setting_value, description, updated_by, updated_at`
	var s model.SystemSetting
	err := r.pool.QueryRow(ctx, q, value, updatedBy, key).Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update setting %s: %w", key, err)
	}
	return &s, nil
}
