package usage

import (
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// Totals is the counter sum shared by every rollup row.
type Totals struct {
	RequestCount     int64   `json:"request_count"`
	TokensPrompt     int64   `json:"tokens_prompt"`
	TokensCompletion int64   `json:"tokens_completion"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
	CachedRequests   int64   `json:"cached_requests"`
	TokensSaved      int64   `json:"tokens_saved"`
	CostSaved        float64 `json:"cost_saved"`
}

// DayTotals is one calendar day's counters.
type DayTotals struct {
	Date time.Time `json:"date"`
	Totals
}

// ModelTotals is one (provider, model) pair's counters.
type ModelTotals struct {
	ProviderID uint64 `json:"provider_id"`
	ModelID    uint64 `json:"model_id"`
	Totals
}

// ProviderTotals is one provider's counters with its distinct model count.
type ProviderTotals struct {
	ProviderID uint64 `json:"provider_id"`
	ModelCount int64  `json:"model_count"`
	Totals
}

// Summary is the fixed convenience rollup set.
type Summary struct {
	CurrentMonth Totals  `json:"current_month"`
	Trailing30d  Totals  `json:"trailing_30d"`
	AllTime      Totals  `json:"all_time"`
	Savings      float64 `json:"savings"` // vs. the flat subscription price
}

// totalsSelect is the aggregate column list shared by every rollup.
const totalsSelect = "COALESCE(SUM(request_count),0) AS request_count, " +
	"COALESCE(SUM(tokens_prompt),0) AS tokens_prompt, " +
	"COALESCE(SUM(tokens_completion),0) AS tokens_completion, " +
	"COALESCE(SUM(total_tokens),0) AS total_tokens, " +
	"COALESCE(SUM(estimated_cost),0) AS estimated_cost, " +
	"COALESCE(SUM(cached_requests),0) AS cached_requests, " +
	"COALESCE(SUM(tokens_saved),0) AS tokens_saved, " +
	"COALESCE(SUM(cost_saved),0) AS cost_saved"

// Rollups answers read-only aggregate queries over usage statistics.
type Rollups struct {
	db *gorm.DB
}

// NewRollups constructs a Rollups reader.
func NewRollups(db *gorm.DB) *Rollups {
	return &Rollups{db: db}
}

// rangeQuery scopes a query to one user and an inclusive date range.
func (q *Rollups) rangeQuery(userID uint64, from, to time.Time) *gorm.DB {
	return q.db.Model(&models.UsageStatistic{}).
		Where("user_id = ?", userID).
		Where("request_date >= ? AND request_date <= ?", models.DateOnly(from), models.DateOnly(to))
}

// ByDay sums counters per calendar day within the range, oldest first.
func (q *Rollups) ByDay(userID uint64, from, to time.Time) ([]DayTotals, error) {
	var rows []DayTotals
	errQuery := q.rangeQuery(userID, from, to).
		Select("request_date AS date, " + totalsSelect).
		Group("request_date").
		Order("request_date ASC").
		Scan(&rows).Error
	if errQuery != nil {
		return nil, fmt.Errorf("usage: rollup by day: %w", errQuery)
	}
	return rows, nil
}

// ByModel sums counters per (provider, model) pair within the range,
// most expensive first.
func (q *Rollups) ByModel(userID uint64, from, to time.Time) ([]ModelTotals, error) {
	var rows []ModelTotals
	errQuery := q.rangeQuery(userID, from, to).
		Select("provider_id, model_id, " + totalsSelect).
		Group("provider_id, model_id").
		Order("estimated_cost DESC").
		Scan(&rows).Error
	if errQuery != nil {
		return nil, fmt.Errorf("usage: rollup by model: %w", errQuery)
	}
	return rows, nil
}

// ByProvider sums counters per provider within the range with the
// distinct model count, most expensive first.
func (q *Rollups) ByProvider(userID uint64, from, to time.Time) ([]ProviderTotals, error) {
	var rows []ProviderTotals
	errQuery := q.rangeQuery(userID, from, to).
		Select("provider_id, COUNT(DISTINCT model_id) AS model_count, " + totalsSelect).
		Group("provider_id").
		Order("estimated_cost DESC").
		Scan(&rows).Error
	if errQuery != nil {
		return nil, fmt.Errorf("usage: rollup by provider: %w", errQuery)
	}
	return rows, nil
}

// totalsSince sums counters from a start date onward. A zero start
// covers all time.
func (q *Rollups) totalsSince(userID uint64, from time.Time) (Totals, error) {
	query := q.db.Model(&models.UsageStatistic{}).Where("user_id = ?", userID)
	if !from.IsZero() {
		query = query.Where("request_date >= ?", models.DateOnly(from))
	}
	var totals Totals
	errQuery := query.Select(totalsSelect).Scan(&totals).Error
	if errQuery != nil {
		return Totals{}, fmt.Errorf("usage: totals: %w", errQuery)
	}
	return totals, nil
}

// Summarize builds the fixed rollups for now: current calendar month,
// trailing 30 days, and all time, plus savings versus the flat monthly
// subscription price.
func (q *Rollups) Summarize(userID uint64, subscriptionPrice float64, now time.Time) (*Summary, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	month, errMonth := q.totalsSince(userID, monthStart)
	if errMonth != nil {
		return nil, errMonth
	}
	trailing, errTrailing := q.totalsSince(userID, now.AddDate(0, 0, -30))
	if errTrailing != nil {
		return nil, errTrailing
	}
	allTime, errAll := q.totalsSince(userID, time.Time{})
	if errAll != nil {
		return nil, errAll
	}

	savings := subscriptionPrice - month.EstimatedCost
	if savings < 0 {
		savings = 0
	}
	return &Summary{
		CurrentMonth: month,
		Trailing30d:  trailing,
		AllTime:      allTime,
		Savings:      savings,
	}, nil
}
