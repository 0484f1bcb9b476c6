package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUsageUserNotFound is returned when a usage write references an
// extension user id with no users row.
var ErrUsageUserNotFound = errors.New("usage: user not found")

// UsageRepository persists the per-day usage aggregate. AddUsage must
// stay a single atomic insert-or-increment statement: two concurrent
// chunk writes for the same user and day both land, in either order,
// without losing an update.
type UsageRepository interface {
	AddUsage(ctx context.Context, extensionUserID string, day time.Time, videosDelta, tokensUsed, apiCalls int64, costIncurred float64) error
	Stats(ctx context.Context, extensionUserID string) (*model.UsageStats, error)
	Analytics(ctx context.Context, days int) ([]model.DailyUsage, error)
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) AddUsage(ctx context.Context, extensionUserID string, day time.Time, videosDelta, tokensUsed, apiCalls int64, costIncurred float64) error {
	const q = `
		INSERT INTO user_usage (user_id, extension_user_id, date, videos_processed, tokens_used, api_calls, cost_incurred)
		SELECT u.id, u.extension_user_id, $2, $3, $4, $5, $6
		FROM users u
		WHERE u.extension_user_id = $1
		ON CONFLICT (user_id, date) DO UPDATE SET
			videos_processed = user_usage.videos_processed + EXCLUDED.videos_processed,
			tokens_used      = user_usage.tokens_used + EXCLUDED.tokens_used,
			api_calls        = user_usage.api_calls + EXCLUDED.api_calls,
			cost_incurred    = user_usage.cost_incurred + EXCLUDED.cost_incurred`
	tag, err := r.pool.Exec(ctx, q, extensionUserID, day, videosDelta, tokensUsed, apiCalls, costIncurred)
	if err != nil {
		return fmt.Errorf("record usage for user %s: %w", extensionUserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record usage for user %s: %w", extensionUserID, ErrUsageUserNotFound)
	}
	return nil
}

func (r *usageRepo) Stats(ctx context.Context, extensionUserID string) (*model.UsageStats, error) {
	const q = `
		SELECT
			COALESCE(SUM(videos_processed), 0) AS total_videos,
			COALESCE(SUM(tokens_used), 0) AS total_tokens,
			COALESCE(SUM(cost_incurred), 0) AS total_cost,
			COALESCE(SUM(CASE WHEN date = CURRENT_DATE THEN videos_processed ELSE 0 END), 0) AS videos_today,
			COALESCE(SUM(CASE WHEN date > CURRENT_DATE - INTERVAL '7 days' THEN videos_processed ELSE 0 END), 0) AS videos_7d,
			COALESCE(SUM(CASE WHEN date > CURRENT_DATE - INTERVAL '30 days' THEN videos_processed ELSE 0 END), 0) AS videos_30d
		FROM user_usage
		WHERE extension_user_id = $1`
	var s model.UsageStats
	err := r.pool.QueryRow(ctx, q, extensionUserID).Scan(
		&s.TotalVideos, &s.TotalTokens, &s.TotalCost,
		&s.VideosToday, &s.Videos7d, &s.Videos30d,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch usage stats for user %s: %w", extensionUserID, err)
	}
	return &s, nil
}

func (r *usageRepo) Analytics(ctx context.Context, days int) ([]model.DailyUsage, error) {
	const q = `
		SELECT date,
		       SUM(videos_processed) AS videos,
		       SUM(tokens_used) AS tokens,
		       SUM(cost_incurred) AS cost,
		       COUNT(DISTINCT user_id) AS active_users
		FROM user_usage
		WHERE date > CURRENT_DATE - $1 * INTERVAL '1 day'
		GROUP BY date
		ORDER BY date DESC`
	rows, err := r.pool.Query(ctx, q, days)
	if err != nil {
		return nil, fmt.Errorf("fetch usage analytics: %w", err)
	}
	defer rows.Close()

	var series []model.DailyUsage
	for rows.Next() {
		var d model.DailyUsage
		if err := rows.Scan(&d.Date, &d.Videos, &d.Tokens, &d.Cost, &d.ActiveUsers); err != nil {
			return nil, fmt.Errorf("scan usage analytics row: %w", err)
		}
		series = append(series, d)
	}
	return series, rows.Err()
}
