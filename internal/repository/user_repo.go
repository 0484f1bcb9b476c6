package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `
	id, extension_user_id, email, tier, plan_name,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	subscription_status, subscription_start_date, subscription_end_date,
	subscription_cancel_at, trial_end_date,
	student_verified, student_verified_at, student_verification_expires_at,
	created_at, updated_at`

// UserRepository defines access to the users table. Lookups return
// (nil, nil) when no row matches.
type UserRepository interface {
	GetByExtensionID(ctx context.Context, extensionUserID string) (*model.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error)
	GetOrCreate(ctx context.Context, extensionUserID string, email *string, tier model.Tier, planName *string) (*model.User, error)
	GetUserConfig(ctx context.Context, extensionUserID string) (*model.UserModelConfig, error)

	UpdateTier(ctx context.Context, extensionUserID string, tier model.Tier, planName, email *string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, extensionUserID, customerID string) error
	ClearStudentVerification(ctx context.Context, extensionUserID string) error

	ActivateLifetime(ctx context.Context, extensionUserID string, tier model.Tier, planName, customerID, priceID string) error
	ApplySubscriptionCreated(ctx context.Context, extensionUserID string, tier model.Tier, planName, customerID, subscriptionID, priceID, status string, startDate time.Time, trialEnd *time.Time) error
	ApplySubscriptionUpdated(ctx context.Context, extensionUserID string, tier model.Tier, planName, priceID, status string, cancelAt *time.Time) error
	DowngradeToFree(ctx context.Context, extensionUserID string) error
	ClearBillingState(ctx context.Context, extensionUserID string) error
	SetSubscriptionStatus(ctx context.Context, subscriptionID, status string) error
	SetSubscriptionCancelAt(ctx context.Context, extensionUserID string, cancelAt time.Time) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.ExtensionUserID, &u.Email, &u.Tier, &u.PlanName,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.StripePriceID,
		&u.SubscriptionStatus, &u.SubscriptionStartDate, &u.SubscriptionEndDate,
		&u.SubscriptionCancelAt, &u.TrialEndDate,
		&u.StudentVerified, &u.StudentVerifiedAt, &u.StudentVerificationExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByExtensionID(ctx context.Context, extensionUserID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE extension_user_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, extensionUserID))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", extensionUserID, err)
	}
	return u, nil
}

func (r *userRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		return nil, fmt.Errorf("fetch user by customer %s: %w", customerID, err)
	}
	return u, nil
}

func (r *userRepo) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_subscription_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("fetch user by subscription %s: %w", subscriptionID, err)
	}
	return u, nil
}

// GetOrCreate returns the existing user or inserts a fresh row. The
// ON CONFLICT DO NOTHING plus re-select keeps concurrent first requests
// from the same install from failing.
func (r *userRepo) GetOrCreate(ctx context.Context, extensionUserID string, email *string, tier model.Tier, planName *string) (*model.User, error) {
	const insertQ = `
		INSERT INTO users (extension_user_id, email, tier, plan_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (extension_user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insertQ, extensionUserID, email, tier, planName); err != nil {
		return nil, fmt.Errorf("create user %s: %w", extensionUserID, err)
	}
	u, err := r.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s missing after upsert", extensionUserID)
	}
	return u, nil
}

// GetUserConfig returns the user joined with the model configuration
// for their tier. The join is LEFT so a missing model_configs row is
// reported as Model == nil rather than as a missing user.
func (r *userRepo) GetUserConfig(ctx context.Context, extensionUserID string) (*model.UserModelConfig, error) {
	const q = `
		SELECT u.id, u.extension_user_id, u.email, u.tier, u.plan_name,
		       u.stripe_customer_id, u.stripe_subscription_id, u.stripe_price_id,
		       u.subscription_status, u.subscription_start_date, u.subscription_end_date,
		       u.subscription_cancel_at, u.trial_end_date,
		       u.student_verified, u.student_verified_at, u.student_verification_expires_at,
		       u.created_at, u.updated_at,
		       mc.model_id, mc.model_name, mc.max_output_tokens,
		       mc.cost_per_1m_input, mc.cost_per_1m_output, mc.context_window
		FROM users u
		LEFT JOIN model_configs mc ON u.tier = mc.tier
		WHERE u.extension_user_id = $1`
	var (
		cfg     model.UserModelConfig
		u       = &cfg.User
		modelID *string
		name    *string
		maxOut  *int
		costIn  *float64
		costOut *float64
		ctxWin  *int
	)
	err := r.pool.QueryRow(ctx, q, extensionUserID).Scan(
		&u.ID, &u.ExtensionUserID, &u.Email, &u.Tier, &u.PlanName,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.StripePriceID,
		&u.SubscriptionStatus, &u.SubscriptionStartDate, &u.SubscriptionEndDate,
		&u.SubscriptionCancelAt, &u.TrialEndDate,
		&u.StudentVerified, &u.StudentVerifiedAt, &u.StudentVerificationExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
		&modelID, &name, &maxOut, &costIn, &costOut, &ctxWin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user config %s: %w", extensionUserID, err)
	}
	if modelID != nil {
		cfg.Model = &model.ModelConfig{
			Tier:            u.Tier,
			ModelID:         *modelID,
			ModelName:       *name,
			MaxOutputTokens: *maxOut,
			CostPer1MInput:  *costIn,
			CostPer1MOutput: *costOut,
			ContextWindow:   *ctxWin,
		}
	}
	return &cfg, nil
}

func (r *userRepo) UpdateTier(ctx context.Context, extensionUserID string, tier model.Tier, planName, email *string) (*model.User, error) {
	q := `
		UPDATE users
		SET tier = $1, plan_name = $2, email = COALESCE($3, email), updated_at = NOW()
		WHERE extension_user_id = $4
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, tier, planName, email, extensionUserID))
	if err != nil {
		return nil, fmt.Errorf("update tier for user %s: %w", extensionUserID, err)
	}
	return u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, extensionUserID, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE extension_user_id = $2`
	if _, err := r.pool.Exec(ctx, q, customerID, extensionUserID); err != nil {
		return fmt.Errorf("store stripe customer id for user %s: %w", extensionUserID, err)
	}
	return nil
}

// ClearStudentVerification self-heals an expired-but-true verified flag.
func (r *userRepo) ClearStudentVerification(ctx context.Context, extensionUserID string) error {
	const q = `
		UPDATE users
		SET student_verified = FALSE, updated_at = NOW()
		WHERE extension_user_id = $1`
	if _, err := r.pool.Exec(ctx, q, extensionUserID); err != nil {
		return fmt.Errorf("clear student verification for user %s: %w", extensionUserID, err)
	}
	return nil
}

func (r *userRepo) ActivateLifetime(ctx context.Context, extensionUserID string, tier model.Tier, planName, customerID, priceID string) error {
	const q = `
		UPDATE users
		SET tier = $1,
		    plan_name = $2,
		    stripe_customer_id = $3,
		    stripe_price_id = $4,
		    stripe_subscription_id = NULL,
		    subscription_status = 'active',
		    subscription_start_date = NOW(),
		    subscription_end_date = NULL,
		    updated_at = NOW()
		WHERE extension_user_id = $5`
	if _, err := r.pool.Exec(ctx, q, tier, planName, customerID, priceID, extensionUserID); err != nil {
		return fmt.Errorf("activate lifetime plan for user %s: %w", extensionUserID, err)
	}
	return nil
}

func (r *userRepo) ApplySubscriptionCreated(ctx context.Context, extensionUserID string, tier model.Tier, planName, customerID, subscriptionID, priceID, status string, startDate time.Time, trialEnd *time.Time) error {
	const q = `
		UPDATE users
		SET tier = $1,
		    plan_name = $2,
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    stripe_price_id = $5,
		    subscription_status = $6,
		    subscription_start_date = $7,
		    trial_end_date = $8,
		    updated_at = NOW()
		WHERE extension_user_id = $9`
	if _, err := r.pool.Exec(ctx, q, tier, planName, customerID, subscriptionID, priceID, status, startDate, trialEnd, extensionUserID); err != nil {
		return fmt.Errorf("apply subscription created for user %s: %w", extensionUserID, err)
	}
	return nil
}

func (r *userRepo) ApplySubscriptionUpdated(ctx context.Context, extensionUserID string, tier model.Tier, planName, priceID, status string, cancelAt *time.Time) error {
	const q = `
		UPDATE users
		SET tier = $1,
		    plan_name = $2,
		    stripe_price_id = $3,
		    subscription_status = $4,
		    subscription_cancel_at = $5,
		    updated_at = NOW()
		WHERE extension_user_id = $6`
	if _, err := r.pool.Exec(ctx, q, tier, planName, priceID, status, cancelAt, extensionUserID); err != nil {
		return fmt.Errorf("apply subscription updated for user %s: %w", extensionUserID, err)
	}
	return nil
}

func (r *userRepo) DowngradeToFree(ctx context.Context, extensionUserID string) error {
	const q = `
		UPDATE users
		SET tier = 'free',
		    plan_name = NULL,
		    subscription_status = 'canceled',
		    subscription_end_date = NOW(),
		    updated_at = NOW()
		WHERE extension_user_id = $1`
	if _, err := r.pool.Exec(ctx, q, extensionUserID); err != nil {
		return fmt.Errorf("downgrade user %s to free tier: %w", extensionUserID, err)
	}
	return nil
}

// ClearBillingState handles customer deletion: a deleted customer has
// no reachable billing state left, so every Stripe identifier is wiped
// along with the downgrade.
func (r *userRepo) ClearBillingState(ctx context.Context, extensionUserID string) error {
	const q = `
		UPDATE users
		SET stripe_customer_id = NULL,
		    stripe_subscription_id = NULL,
		    stripe_price_id = NULL,
		    tier = 'free',
		    plan_name = NULL,
		    subscription_status = 'canceled',
		    subscription_end_date = NOW(),
		    subscription_cancel_at = NULL,
		    trial_end_date = NULL,
		    updated_at = NOW()
		WHERE extension_user_id = $1`
	if _, err := r.pool.Exec(ctx, q, extensionUserID); err != nil {
		return fmt.Errorf("clear billing state for user %s: %w", extensionUserID, err)
	}
	return nil
}

func (r *userRepo) SetSubscriptionStatus(ctx context.Context, subscriptionID, status string) error {
	const q = `
		UPDATE users
		SET subscription_status = $1, updated_at = NOW()
		WHERE stripe_subscription_id = $2`
	if _, err := r.pool.Exec(ctx, q, status, subscriptionID); err != nil {
		return fmt.Errorf("set subscription %s status %s: %w", subscriptionID, status, err)
	}
	return nil
}

func (r *userRepo) SetSubscriptionCancelAt(ctx context.Context, extensionUserID string, cancelAt time.Time) error {
	const q = `
		UPDATE users
		SET subscription_cancel_at = $1, updated_at = NOW()
		WHERE extension_user_id = $2`
	if _, err := r.pool.Exec(ctx, q, cancelAt, extensionUserID); err != nil {
		return fmt.Errorf("set cancel date for user %s: %w", extensionUserID, err)
	}
	return nil
}
