package dto

import "time"

// UserUpsertDTO registers or fetches a user by extension install id.
type UserUpsertDTO struct {
	ExtensionUserID string  `json:"extension_user_id" validate:"required"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Tier            string  `json:"tier" validate:"omitempty,oneof=free trial premium unlimited managed"`
	PlanName        *string `json:"plan_name"`
}

// UserTierUpdateDTO changes a user's tier directly.
type UserTierUpdateDTO struct {
	ExtensionUserID string  `json:"extension_user_id" validate:"required"`
	Tier            string  `json:"tier" validate:"required,oneof=free trial premium unlimited managed"`
	PlanName        *string `json:"plan_name"`
	Email           *string `json:"email" validate:"omitempty,email"`
}

// TrackUsageDTO is client-reported usage from BYOK tiers that call the
// provider directly. Zero videos_processed still counts one video.
type TrackUsageDTO struct {
	ExtensionUserID string  `json:"extension_user_id" validate:"required"`
	VideosProcessed int64   `json:"videos_processed" validate:"gte=0"`
	TokensUsed      int64   `json:"tokens_used" validate:"gte=0"`
	CostIncurred    float64 `json:"cost_incurred" validate:"gte=0"`
}

type UserResponseDTO struct {
	ExtensionUserID string    `json:"extension_user_id"`
	Email           *string   `json:"email,omitempty"`
	Tier            string    `json:"tier"`
	PlanName        *string   `json:"plan_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ModelConfigDTO struct {
	Tier            string  `json:"tier"`
	ModelID         string  `json:"model_id"`
	ModelName       string  `json:"model_name"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	CostPer1MInput  float64 `json:"cost_per_1m_input"`
	CostPer1MOutput float64 `json:"cost_per_1m_output"`
	ContextWindow   int     `json:"context_window"`
}

// UserModelResponseDTO tells the extension which model to use and
// whether the user must supply their own provider key.
type UserModelResponseDTO struct {
	User           UserResponseDTO `json:"user"`
	Model          *ModelConfigDTO `json:"model,omitempty"`
	RequiresAPIKey bool            `json:"requires_api_key"`
}

type UsageStatsResponseDTO struct {
	TotalVideos int64   `json:"total_videos"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	VideosToday int64   `json:"videos_today"`
	Videos7d    int64   `json:"videos_7d"`
	Videos30d   int64   `json:"videos_30d"`
}
