// Package usage accumulates per-user, per-provider, per-model daily
// request counters and answers rollup queries over them.
package usage

import (
	"context"
	"time"

	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/providers"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// recordTimeout bounds a single accounting write.
const recordTimeout = 5 * time.Second

// Recorder persists usage increments. Writes are best effort: failures
// are logged and never propagated, so accounting can run as deferred
// background work without failing the request that triggered it.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// usageConflictColumns is the unique accumulation key.
var usageConflictColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "provider_id"},
	{Name: "model_id"},
	{Name: "request_date"},
}

// Record accumulates one request into the row for (user, provider,
// model, day). The write is a single atomic upsert-with-increment, so
// concurrent requests on the same key never lose counts.
func (r *Recorder) Record(userID, providerID, modelID uint64, tokens providers.TokenUsage, cost float64, requestDate time.Time) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	row := models.UsageStatistic{
		UserID:           userID,
		ProviderID:       providerID,
		ModelID:          modelID,
		RequestDate:      models.DateOnly(requestDate),
		RequestCount:     1,
		TokensPrompt:     int64(tokens.PromptTokens),
		TokensCompletion: int64(tokens.CompletionTokens),
		TotalTokens:      int64(tokens.TotalTokens),
		EstimatedCost:    cost,
	}
	errUpsert := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: usageConflictColumns,
			DoUpdates: clause.Assignments(map[string]any{
				"request_count":     gorm.Expr("request_count + ?", 1),
				"tokens_prompt":     gorm.Expr("tokens_prompt + ?", row.TokensPrompt),
				"tokens_completion": gorm.Expr("tokens_completion + ?", row.TokensCompletion),
				"total_tokens":      gorm.Expr("total_tokens + ?", row.TotalTokens),
				"estimated_cost":    gorm.Expr("estimated_cost + ?", row.EstimatedCost),
				"updated_at":        time.Now().UTC(),
			}),
		}).
		Create(&row).Error
	if errUpsert != nil {
		log.WithError(errUpsert).WithFields(log.Fields{
			"user_id":     userID,
			"provider_id": providerID,
			"model_id":    modelID,
		}).Warn("usage: record failed")
	}
}

// RecordCacheHit accumulates a request served from the response cache:
// the request still counts, and the avoided tokens and cost go into the
// savings counters.
func (r *Recorder) RecordCacheHit(userID, providerID, modelID uint64, tokensSaved int64, costSaved float64, requestDate time.Time) {
	if r == nil || r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	row := models.UsageStatistic{
		UserID:         userID,
		ProviderID:     providerID,
		ModelID:        modelID,
		RequestDate:    models.DateOnly(requestDate),
		RequestCount:   1,
		CachedRequests: 1,
		TokensSaved:    tokensSaved,
		CostSaved:      costSaved,
	}
	errUpsert := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: usageConflictColumns,
			DoUpdates: clause.Assignments(map[string]any{
				"request_count":   gorm.Expr("request_count + ?", 1),
				"cached_requests": gorm.Expr("cached_requests + ?", 1),
				"tokens_saved":    gorm.Expr("tokens_saved + ?", tokensSaved),
				"cost_saved":      gorm.Expr("cost_saved + ?", costSaved),
				"updated_at":      time.Now().UTC(),
			}),
		}).
		Create(&row).Error
	if errUpsert != nil {
		log.WithError(errUpsert).WithFields(log.Fields{
			"user_id":     userID,
			"provider_id": providerID,
			"model_id":    modelID,
		}).Warn("usage: record cache hit failed")
	}
}
