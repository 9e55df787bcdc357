package models

import (
	"strings"
	"time"
)

// Credential stores a user-owned API key for one provider.
type Credential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   User   `gorm:"foreignKey:UserID"` // User relation.

	ProviderID uint64   `gorm:"not null;index"`        // Target provider.
	Provider   Provider `gorm:"foreignKey:ProviderID"` // Provider relation.

	SecretValue string `gorm:"type:text;not null"` // Raw provider API key.
	DisplayName string `gorm:"type:text"`          // Optional label.

	IsActive bool `gorm:"not null;default:true"` // Soft-disable flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DetectProviderCode guesses the provider from the key format.
// Returns "" when the format is not recognized.
func DetectProviderCode(secret string) ProviderCode {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return ""
	case strings.HasPrefix(secret, "sk-ant-"):
		return ProviderAnthropic
	case strings.HasPrefix(secret, "sk-") && len(secret) > 50:
		return ProviderOpenAI
	case strings.HasPrefix(secret, "AIza"):
		return ProviderGoogle
	case strings.HasPrefix(secret, "mis-"):
		return ProviderMistral
	default:
		return ""
	}
}
