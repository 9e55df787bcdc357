// Package pricing resolves per-request cost from preference overrides
// and built-in provider price tables.
package pricing

import (
	"strings"

	"github.com/modelgate/modelgate/internal/models"
)

// Rates are USD per 1,000 tokens.
type Rates struct {
	InputPer1K  float64
	OutputPer1K float64
}

// providerTable holds one provider's built-in prices and the model used
// when a code is not in the table.
type providerTable struct {
	models       map[string]Rates
	defaultModel string
}

// builtinTables are the static per-provider price tables. Prices track
// each vendor's published list pricing.
var builtinTables = map[models.ProviderCode]providerTable{
	models.ProviderOpenAI: {
		defaultModel: "gpt-3.5-turbo",
		models: map[string]Rates{
			"gpt-3.5-turbo": {InputPer1K: 0.0015, OutputPer1K: 0.002},
			"gpt-4":         {InputPer1K: 0.03, OutputPer1K: 0.06},
			"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
			"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
		},
	},
	models.ProviderAnthropic: {
		defaultModel: "claude-3-haiku",
		models: map[string]Rates{
			"claude-3-haiku":  {InputPer1K: 0.00025, OutputPer1K: 0.00125},
			"claude-3-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
			"claude-3-opus":   {InputPer1K: 0.015, OutputPer1K: 0.075},
		},
	},
	models.ProviderGoogle: {
		defaultModel: "gemini-1.5-flash",
		models: map[string]Rates{
			"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
			"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
		},
	},
	models.ProviderMistral: {
		defaultModel: "mistral-small-latest",
		models: map[string]Rates{
			"mistral-small-latest": {InputPer1K: 0.0002, OutputPer1K: 0.0006},
			"mistral-large-latest": {InputPer1K: 0.002, OutputPer1K: 0.006},
			"open-mixtral-8x7b":    {InputPer1K: 0.0007, OutputPer1K: 0.0007},
		},
	},
}

// Lookup returns the built-in rates for a provider's model. Versioned
// codes fall back to their family prefix, unknown codes fall back to
// the provider's default model, and an unknown provider prices at zero.
func Lookup(provider models.ProviderCode, modelCode string) Rates {
	table, ok := builtinTables[provider]
	if !ok {
		return Rates{}
	}
	if rates, found := table.models[modelCode]; found {
		return rates
	}
	for family, rates := range table.models {
		if strings.HasPrefix(modelCode, family) {
			return rates
		}
	}
	return table.models[table.defaultModel]
}

// BuiltinCost prices a request against Lookup's rates.
func BuiltinCost(provider models.ProviderCode, modelCode string, promptTokens, completionTokens int) float64 {
	rates := Lookup(provider, modelCode)
	return float64(promptTokens)*rates.InputPer1K/1000 + float64(completionTokens)*rates.OutputPer1K/1000
}
