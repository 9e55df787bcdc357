package models

import (
	"fmt"
	"strings"
	"time"
)

// ProviderCode identifies a supported upstream LLM vendor.
type ProviderCode string

// Supported provider codes.
const (
	ProviderOpenAI    ProviderCode = "openai"
	ProviderAnthropic ProviderCode = "anthropic"
	ProviderGoogle    ProviderCode = "google"
	ProviderMistral   ProviderCode = "mistral"
)

// KnownProviderCodes lists every provider the registry can construct.
var KnownProviderCodes = []ProviderCode{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderMistral,
}

// ParseProviderCode normalizes and validates a provider code string.
func ParseProviderCode(code string) (ProviderCode, error) {
	normalized := ProviderCode(strings.ToLower(strings.TrimSpace(code)))
	for _, known := range KnownProviderCodes {
		if normalized == known {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("models: unknown provider code: %s", code)
}

// Provider is static reference data describing one upstream vendor.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code        string `gorm:"type:text;not null;uniqueIndex"` // Stable machine key (openai, anthropic, ...).
	DisplayName string `gorm:"type:text;not null"`             // Human-readable name.
	Description string `gorm:"type:text"`                      // Optional description.

	IsActive bool `gorm:"not null;default:true"` // Whether the provider is globally enabled.

	Models []AIModel `gorm:"foreignKey:ProviderID"` // Models served by this provider.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Usable reports whether the provider is active and has at least one active model.
func (p *Provider) Usable() bool {
	if !p.IsActive {
		return false
	}
	for i := range p.Models {
		if p.Models[i].IsActive {
			return true
		}
	}
	return false
}

// AIModel describes one model offered by a provider.
type AIModel struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64   `gorm:"not null;index"`           // Owning provider.
	Provider   Provider `gorm:"foreignKey:ProviderID"`    // Provider relation.
	Code       string   `gorm:"type:text;not null;index"` // Model code (gpt-4, claude-3-opus, ...).

	DisplayName string `gorm:"type:text;not null"` // Human-readable name.
	Description string `gorm:"type:text"`          // Optional description.

	IsActive          bool `gorm:"not null;default:true"` // Availability flag.
	MaxContextLength  int  `gorm:"not null;default:4096"` // Context window in tokens.
	SupportsStreaming bool `gorm:"not null;default:true"` // Streaming capability flag.

	InputPricePer1K  float64 `gorm:"not null;default:0"` // USD per 1K input tokens.
	OutputPricePer1K float64 `gorm:"not null;default:0"` // USD per 1K output tokens.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// modelCodePrefixes maps a provider code to its accepted model code prefixes.
var modelCodePrefixes = map[ProviderCode][]string{
	ProviderOpenAI:    {"gpt-", "text-", "dall-", "o1", "o3"},
	ProviderAnthropic: {"claude-"},
	ProviderGoogle:    {"gemini-", "text-"},
	ProviderMistral:   {"mistral-", "open-", "codestral-"},
}

// ValidateModelCode checks a model code against the provider's naming convention.
func ValidateModelCode(provider ProviderCode, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("models: empty model code")
	}
	prefixes, ok := modelCodePrefixes[provider]
	if !ok {
		return fmt.Errorf("models: unknown provider code: %s", provider)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(code, prefix) {
			return nil
		}
	}
	return fmt.Errorf("models: model code %q does not match provider %s", code, provider)
}

// ValidateParameters verifies generation parameters against the model limits.
func (m *AIModel) ValidateParameters(maxTokens int, temperature float64) error {
	if maxTokens > 0 && m.MaxContextLength > 0 && maxTokens > m.MaxContextLength {
		return fmt.Errorf("models: max_tokens %d exceeds context length %d", maxTokens, m.MaxContextLength)
	}
	if temperature < 0 || temperature > 1 {
		return fmt.Errorf("models: temperature %.2f outside [0,1]", temperature)
	}
	return nil
}
