package models

import "time"

// ModelPreference stores a user's saved generation settings for one
// provider+model pair, including optional per-1K price overrides that take
// precedence over the built-in price tables.
type ModelPreference struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   User   `gorm:"foreignKey:UserID"` // User relation.

	CredentialID uint64     `gorm:"not null;index"`          // Credential this preference is bound to.
	Credential   Credential `gorm:"foreignKey:CredentialID"` // Credential relation.

	ProviderID uint64  `gorm:"not null;index"`     // Target provider.
	ModelID    uint64  `gorm:"not null;index"`     // Target model.
	Model      AIModel `gorm:"foreignKey:ModelID"` // Model relation.

	MaxTokens    int     `gorm:"not null;default:1000"` // Completion token cap.
	Temperature  float64 `gorm:"not null;default:0.7"`  // Sampling temperature in [0,1].
	SystemPrompt string  `gorm:"type:text"`             // Optional default system prompt.

	IsDefault bool `gorm:"not null;default:false;index"` // At most one default per (user, credential).

	InputCostOverride       *float64 `gorm:"type:decimal(20,10)"` // USD per 1K input tokens.
	OutputCostOverride      *float64 `gorm:"type:decimal(20,10)"` // USD per 1K output tokens.
	CachedInputCostOverride *float64 `gorm:"type:decimal(20,10)"` // USD per 1K cached input tokens.

	Description string `gorm:"type:text"` // Optional note.

	UseCount   int64      `gorm:"not null;default:0"` // Times this preference was used.
	LastUsedAt *time.Time // Last use timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasCostOverride reports whether any pricing override is configured.
func (p *ModelPreference) HasCostOverride() bool {
	return p.InputCostOverride != nil || p.OutputCostOverride != nil || p.CachedInputCostOverride != nil
}
