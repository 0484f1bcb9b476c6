package model

import "time"

// UsageRecord is the per-(user, calendar day) aggregate. All numeric
// fields only ever grow within a day.
type UsageRecord struct {
	UserID          int64     `db:"user_id" json:"user_id"`
	ExtensionUserID string    `db:"extension_user_id" json:"extension_user_id"`
	Date            time.Time `db:"date" json:"date"`
	VideosProcessed int64     `db:"videos_processed" json:"videos_processed"`
	TokensUsed      int64     `db:"tokens_used" json:"tokens_used"`
	APICalls        int64     `db:"api_calls" json:"api_calls"`
	CostIncurred    float64   `db:"cost_incurred" json:"cost_incurred"`
}

// UsageStats aggregates a user's usage over standard windows.
type UsageStats struct {
	TotalVideos int64   `json:"total_videos"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	VideosToday int64   `json:"videos_today"`
	Videos7d    int64   `json:"videos_7d"`
	Videos30d   int64   `json:"videos_30d"`
}

// DailyUsage is one row of the admin usage analytics series.
type DailyUsage struct {
	Date        time.Time `json:"date"`
	Videos      int64     `json:"videos"`
	Tokens      int64     `json:"tokens"`
	Cost        float64   `json:"cost"`
	ActiveUsers int64     `json:"active_users"`
}
