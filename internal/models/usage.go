package models

import "time"

// UsageStatistic accumulates request, token, and cost counters for one
// (user, provider, model, day) key. Rows are only mutated by the accounting
// increment; everything else reads them.
type UsageStatistic struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;uniqueIndex:idx_usage_key"` // Owning user.
	ProviderID uint64 `gorm:"not null;uniqueIndex:idx_usage_key"` // Provider dimension.
	ModelID    uint64 `gorm:"not null;uniqueIndex:idx_usage_key"` // Model dimension.

	RequestDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_usage_key;index"` // Calendar day (UTC midnight).

	RequestCount     int64 `gorm:"not null;default:0"` // Completed requests.
	TokensPrompt     int64 `gorm:"not null;default:0"` // Prompt tokens.
	TokensCompletion int64 `gorm:"not null;default:0"` // Completion tokens.
	TotalTokens      int64 `gorm:"not null;default:0"` // Prompt + completion tokens.

	EstimatedCost float64 `gorm:"not null;default:0"` // Accumulated USD cost.

	CachedRequests int64   `gorm:"not null;default:0"` // Requests served from the response cache.
	TokensSaved    int64   `gorm:"not null;default:0"` // Tokens avoided by cache hits.
	CostSaved      float64 `gorm:"not null;default:0"` // USD avoided by cache hits.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
