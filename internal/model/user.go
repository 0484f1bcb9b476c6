package model

import "time"

// Tier is a named subscription level determining which AI model and
// pricing apply to a user.
type Tier string

const (
	TierFree      Tier = "free"
	TierTrial     Tier = "trial"
	TierPremium   Tier = "premium"
	TierUnlimited Tier = "unlimited"
	TierManaged   Tier = "managed"
)

// Valid reports whether t is one of the closed tier set.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierTrial, TierPremium, TierUnlimited, TierManaged:
		return true
	}
	return false
}

// ManagedProcessing reports whether the tier is eligible for
// provider-managed processing with the shared API key. All other tiers
// call the AI provider directly with their own credentials.
func (t Tier) ManagedProcessing() bool {
	return t == TierManaged || t == TierTrial
}

// User represents one extension install/account.
type User struct {
	ID              int64      `db:"id" json:"id"`
	ExtensionUserID string     `db:"extension_user_id" json:"extension_user_id"`
	Email           *string    `db:"email" json:"email,omitempty"`
	Tier            Tier       `db:"tier" json:"tier"`
	PlanName        *string    `db:"plan_name" json:"plan_name,omitempty"`

	StripeCustomerID     *string `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StripePriceID        *string `db:"stripe_price_id" json:"stripe_price_id,omitempty"`

	SubscriptionStatus    *string    `db:"subscription_status" json:"subscription_status,omitempty"`
	SubscriptionStartDate *time.Time `db:"subscription_start_date" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `db:"subscription_end_date" json:"subscription_end_date,omitempty"`
	SubscriptionCancelAt  *time.Time `db:"subscription_cancel_at" json:"subscription_cancel_at,omitempty"`
	TrialEndDate          *time.Time `db:"trial_end_date" json:"trial_end_date,omitempty"`

	StudentVerified              bool       `db:"student_verified" json:"student_verified"`
	StudentVerifiedAt            *time.Time `db:"student_verified_at" json:"student_verified_at,omitempty"`
	StudentVerificationExpiresAt *time.Time `db:"student_verification_expires_at" json:"student_verification_expires_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentCurrentlyVerified applies the expiry: a true flag with an
// expiry in the past counts as unverified.
func (u *User) StudentCurrentlyVerified(now time.Time) bool {
	if !u.StudentVerified {
		return false
	}
	if u.StudentVerificationExpiresAt != nil && u.StudentVerificationExpiresAt.Before(now) {
		return false
	}
	return true
}

// UserModelConfig is the joined User×ModelConfig row the request
// processor needs. Model is nil when no model_configs row exists for
// the user's tier.
type UserModelConfig struct {
	User  User
	Model *ModelConfig
}
