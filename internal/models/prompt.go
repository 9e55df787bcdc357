package models

import "time"

// ThreadCategory groups threads and saved prompts for one user.
type ThreadCategory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   User   `gorm:"foreignKey:UserID"` // User relation.

	Name        string `gorm:"type:text;not null"` // Display name.
	Description string `gorm:"type:text"`          // Optional description.
	Color       string `gorm:"type:text"`          // UI color label.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// SavedPrompt is a reusable prompt snippet owned by a user.
type SavedPrompt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   User   `gorm:"foreignKey:UserID"` // User relation.

	CategoryID *uint64         `gorm:"index"`                 // Optional category.
	Category   *ThreadCategory `gorm:"foreignKey:CategoryID"` // Category relation.

	Title       string `gorm:"type:text;not null"` // Display title.
	Content     string `gorm:"type:text;not null"` // Prompt body.
	Description string `gorm:"type:text"`          // Optional description.

	IsFavorite bool `gorm:"not null;default:false"` // Favorite flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
