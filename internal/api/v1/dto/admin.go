package dto

import "time"

// SettingUpdateDTO changes one system setting. Values are opaque
// strings; the openrouter_api_key value is never echoed back in full.
type SettingUpdateDTO struct {
	Value string `json:"value"`
}

type SettingResponseDTO struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description *string   `json:"description,omitempty"`
	UpdatedBy   string    `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ModelUpdateDTO reassigns a tier's model and pricing.
type ModelUpdateDTO struct {
	ModelID         string  `json:"model_id" validate:"required"`
	ModelName       string  `json:"model_name" validate:"required"`
	MaxOutputTokens int     `json:"max_output_tokens" validate:"required,gt=0"`
	CostPer1MInput  float64 `json:"cost_per_1m_input" validate:"gte=0"`
	CostPer1MOutput float64 `json:"cost_per_1m_output" validate:"gte=0"`
	ContextWindow   int     `json:"context_window" validate:"required,gt=0"`
}

type DailyUsageDTO struct {
	Date        time.Time `json:"date"`
	Videos      int64     `json:"videos"`
	Tokens      int64     `json:"tokens"`
	Cost        float64   `json:"cost"`
	ActiveUsers int64     `json:"active_users"`
}

type AnalyticsResponseDTO struct {
	Days  int             `json:"days"`
	Usage []DailyUsageDTO `json:"usage"`
}
