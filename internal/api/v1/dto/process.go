package dto

// ProcessChunkRequestDTO is one transcript chunk submitted by the
// extension for server-side summarization.
type ProcessChunkRequestDTO struct {
	ExtensionUserID string `json:"extension_user_id" validate:"required"`
	VideoID         string `json:"video_id" validate:"required"`
	Transcript      string `json:"transcript" validate:"required"`
	Prompt          string `json:"prompt" validate:"required"`
	MaxTokens       int    `json:"max_tokens" validate:"omitempty,gte=0"`
}

type ProcessUsageDTO struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

type ProcessChunkResponseDTO struct {
	Content string          `json:"content"`
	Usage   ProcessUsageDTO `json:"usage"`
	Model   string          `json:"model"`
	Tier    string          `json:"tier"`
}
