package model

import "time"

// ModelConfig maps a tier to its AI model and pricing metadata. One row
// per tier, seeded at deploy time and edited by administrators.
type ModelConfig struct {
	Tier            Tier      `db:"tier" json:"tier"`
	ModelID         string    `db:"model_id" json:"model_id"`
	ModelName       string    `db:"model_name" json:"model_name"`
	MaxOutputTokens int       `db:"max_output_tokens" json:"max_output_tokens"`
	CostPer1MInput  float64   `db:"cost_per_1m_input" json:"cost_per_1m_input"`
	CostPer1MOutput float64   `db:"cost_per_1m_output" json:"cost_per_1m_output"`
	ContextWindow   int       `db:"context_window" json:"context_window"`
	UpdatedBy       string    `db:"updated_by" json:"updated_by"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
