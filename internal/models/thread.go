package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether the role is one of the supported values.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// Thread is a persisted conversation bound to one provider+model.
type Thread struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   User   `gorm:"foreignKey:UserID"` // User relation.

	CategoryID *uint64         `gorm:"index"`                 // Optional category.
	Category   *ThreadCategory `gorm:"foreignKey:CategoryID"` // Category relation.

	Title string `gorm:"type:text;not null"` // Display title.

	ProviderID uint64  `gorm:"not null;index"`     // Conversation provider.
	ModelID    uint64  `gorm:"not null;index"`     // Conversation model.
	Model      AIModel `gorm:"foreignKey:ModelID"` // Model relation.

	MaxTokens   int     `gorm:"not null;default:1000"` // Generation token cap.
	Temperature float64 `gorm:"not null;default:0.7"`  // Sampling temperature in [0,1].

	IsPinned   bool `gorm:"not null;default:false"` // Pin flag.
	IsArchived bool `gorm:"not null;default:false"` // Archive flag.

	CreatedAt     time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	LastMessageAt time.Time `gorm:"not null"`                // Timestamp of the newest message.
}

// Message is a single entry in a thread.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ThreadID uint64 `gorm:"not null;index"`      // Owning thread.
	Thread   Thread `gorm:"foreignKey:ThreadID"` // Thread relation.

	Role    string `gorm:"type:text;not null;index"` // user, assistant, or system.
	Content string `gorm:"type:text;not null"`       // Message body.

	TokensPrompt     int64 `gorm:"not null;default:0"` // Prompt tokens attributed to this message.
	TokensCompletion int64 `gorm:"not null;default:0"` // Completion tokens attributed to this message.
	TokensTotal      int64 `gorm:"not null;default:0"` // Total tokens.

	ProviderID *uint64 `gorm:"index"` // Provider that produced this message, when assistant.
	ModelID    *uint64 `gorm:"index"` // Model that produced this message, when assistant.

	Cost float64 `gorm:"not null;default:0"` // USD cost of producing this message.

	ModelPreferenceID *uint64 `gorm:"index"` // Preference used for generation, if any.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Structured metadata (stopped_early, error detail, ...).

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// Validate checks role and content before persistence.
func (m *Message) Validate() error {
	if !ValidRole(m.Role) {
		return fmt.Errorf("models: unsupported role: %s", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("models: empty message content")
	}
	return nil
}
