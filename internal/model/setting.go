package model

import "time"

// Setting keys read on the processing path.
const (
	SettingOpenRouterAPIKey = "openrouter_api_key"

	// SettingRequireAPIKeyPrefix + tier holds a per-tier "user must
	// bring their own key" boolean ("true"/"false").
	SettingRequireAPIKeyPrefix = "require_api_key_for_"
)

// SystemSetting is a runtime-tunable key/value row.
type SystemSetting struct {
	Key         string    `db:"setting_key" json:"setting_key"`
	Value       string    `db:"setting_value" json:"setting_value"`
	Description *string   `db:"description" json:"description,omitempty"`
	UpdatedBy   string    `db:"updated_by" json:"updated_by"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
