package models

import (
	"regexp"
	"time"

	"gorm.io/datatypes"
)

// emailPattern is a permissive sanity check, not a full RFC validator.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents an end-user account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Login name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Contact email.
	Password string `gorm:"type:text;not null"`             // Bcrypt password hash.

	FirstName string `gorm:"type:text"` // Optional first name.
	LastName  string `gorm:"type:text"` // Optional last name.

	IsActive bool `gorm:"not null;default:true"`  // Whether the account is enabled.
	IsAdmin  bool `gorm:"not null;default:false"` // Administrative flag.

	Preferences datatypes.JSON `gorm:"type:jsonb"` // Free-form UI preferences.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ValidEmail reports whether the address passes the basic format check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
