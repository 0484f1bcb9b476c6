package dto

import "time"

// CheckoutRequestDTO starts a Stripe checkout for a price.
type CheckoutRequestDTO struct {
	ExtensionUserID string  `json:"extension_user_id" validate:"required"`
	PriceID         string  `json:"price_id" validate:"required"`
	Email           *string `json:"email" validate:"omitempty,email"`
	SuccessURL      string  `json:"success_url" validate:"omitempty,url"`
	CancelURL       string  `json:"cancel_url" validate:"omitempty,url"`
}

type CheckoutResponseDTO struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type ChangeSubscriptionRequestDTO struct {
	ExtensionUserID string `json:"extension_user_id" validate:"required"`
	NewPriceID      string `json:"new_price_id" validate:"required"`
}

type CancelSubscriptionRequestDTO struct {
	ExtensionUserID string `json:"extension_user_id" validate:"required"`
	Immediate       bool   `json:"immediate"`
}

type CancelSubscriptionResponseDTO struct {
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	CancelAt       *time.Time `json:"cancel_at,omitempty"`
	Message        string     `json:"message"`
}

type SubscriptionDetailDTO struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	PriceID           string     `json:"price_id,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
}

type SubscriptionStatusResponseDTO struct {
	Tier         string                 `json:"tier"`
	PlanName     *string                `json:"plan_name,omitempty"`
	Subscription *SubscriptionDetailDTO `json:"subscription,omitempty"`
}
