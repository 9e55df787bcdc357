package pricing

import (
	"errors"
	"fmt"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// Trace sources.
const (
	SourceOverride = "db_override"
	SourceTable    = "default_table"
)

// Trace records which pricing source and exact per-1k rates produced a
// cost figure, for auditability.
type Trace struct {
	Source      string  `json:"source"`
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
	CachedInput bool    `json:"cached_input"`
}

// Calculator computes request cost with preference overrides taking
// precedence over the built-in tables.
type Calculator struct {
	db *gorm.DB
}

// NewCalculator returns a Calculator backed by the given database.
func NewCalculator(db *gorm.DB) *Calculator {
	return &Calculator{db: db}
}

// Compute prices a request. Resolution order: a cost override on the
// referenced preference wins, otherwise the provider's built-in table.
// When isCached is true and the preference carries a cached-input
// override, prompt tokens are priced at the cached tier; completion
// pricing never depends on isCached.
func (c *Calculator) Compute(promptTokens, completionTokens int, provider models.ProviderCode, modelCode string, preferenceID *uint64, isCached bool) (float64, Trace, error) {
	if preferenceID != nil {
		var pref models.ModelPreference
		errFind := c.db.First(&pref, *preferenceID).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, Trace{}, fmt.Errorf("pricing: load preference %d: %w", *preferenceID, errFind)
		}
		if errFind == nil && pref.HasCostOverride() {
			return overrideCost(&pref, promptTokens, completionTokens, isCached)
		}
	}
	rates := Lookup(provider, modelCode)
	cost := float64(promptTokens)*rates.InputPer1K/1000 + float64(completionTokens)*rates.OutputPer1K/1000
	return cost, Trace{
		Source:      SourceTable,
		InputPer1K:  rates.InputPer1K,
		OutputPer1K: rates.OutputPer1K,
	}, nil
}

// overrideCost prices from a preference's override columns.
func overrideCost(pref *models.ModelPreference, promptTokens, completionTokens int, isCached bool) (float64, Trace, error) {
	var inputRate, outputRate float64
	cachedTier := false

	if isCached && pref.CachedInputCostOverride != nil {
		inputRate = *pref.CachedInputCostOverride
		cachedTier = true
	} else if pref.InputCostOverride != nil {
		inputRate = *pref.InputCostOverride
	}
	if pref.OutputCostOverride != nil {
		outputRate = *pref.OutputCostOverride
	}

	cost := float64(promptTokens)*inputRate/1000 + float64(completionTokens)*outputRate/1000
	return cost, Trace{
		Source:      SourceOverride,
		InputPer1K:  inputRate,
		OutputPer1K: outputRate,
		CachedInput: cachedTier,
	}, nil
}
