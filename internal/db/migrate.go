package db

import (
	"errors"
	"fmt"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted entities.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Provider{},
		&models.AIModel{},
		&models.Credential{},
		&models.ModelPreference{},
		&models.UsageStatistic{},
		&models.ThreadCategory{},
		&models.Thread{},
		&models.Message{},
		&models.SavedPrompt{},
	)
}

// seedModel describes one built-in model row.
type seedModel struct {
	code        string
	name        string
	context     int
	inputPer1K  float64
	outputPer1K float64
}

// providerSeeds holds the reference data installed on first migration.
var providerSeeds = []struct {
	code   models.ProviderCode
	name   string
	models []seedModel
}{
	{
		code: models.ProviderOpenAI,
		name: "OpenAI",
		models: []seedModel{
			{"gpt-3.5-turbo", "GPT-3.5 Turbo", 16385, 0.0015, 0.002},
			{"gpt-4", "GPT-4", 8192, 0.03, 0.06},
			{"gpt-4-turbo", "GPT-4 Turbo", 128000, 0.01, 0.03},
			{"gpt-4o", "GPT-4o", 128000, 0.0025, 0.01},
		},
	},
	{
		code: models.ProviderAnthropic,
		name: "Anthropic",
		models: []seedModel{
			{"claude-3-haiku", "Claude 3 Haiku", 200000, 0.00025, 0.00125},
			{"claude-3-sonnet", "Claude 3 Sonnet", 200000, 0.003, 0.015},
			{"claude-3-opus", "Claude 3 Opus", 200000, 0.015, 0.075},
		},
	},
	{
		code: models.ProviderGoogle,
		name: "Google",
		models: []seedModel{
			{"gemini-1.5-flash", "Gemini 1.5 Flash", 1000000, 0.000075, 0.0003},
			{"gemini-1.5-pro", "Gemini 1.5 Pro", 2000000, 0.00125, 0.005},
		},
	},
	{
		code: models.ProviderMistral,
		name: "Mistral",
		models: []seedModel{
			{"mistral-small-latest", "Mistral Small", 32000, 0.0002, 0.0006},
			{"mistral-large-latest", "Mistral Large", 128000, 0.002, 0.006},
			{"open-mixtral-8x7b", "Mixtral 8x7B", 32000, 0.0007, 0.0007},
		},
	},
}

// SeedReferenceData installs the built-in provider and model rows.
// Existing rows are left untouched so operators can disable or reprice them.
func SeedReferenceData(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		for _, seed := range providerSeeds {
			var provider models.Provider
			errFind := tx.Where("code = ?", string(seed.code)).First(&provider).Error
			if errFind != nil {
				if !errors.Is(errFind, gorm.ErrRecordNotFound) {
					return errFind
				}
				provider = models.Provider{
					Code:        string(seed.code),
					DisplayName: seed.name,
					IsActive:    true,
				}
				if errCreate := tx.Create(&provider).Error; errCreate != nil {
					return errCreate
				}
			}
			for _, m := range seed.models {
				var count int64
				if errCount := tx.Model(&models.AIModel{}).
					Where("provider_id = ? AND code = ?", provider.ID, m.code).
					Count(&count).Error; errCount != nil {
					return errCount
				}
				if count > 0 {
					continue
				}
				row := models.AIModel{
					ProviderID:        provider.ID,
					Code:              m.code,
					DisplayName:       m.name,
					IsActive:          true,
					MaxContextLength:  m.context,
					SupportsStreaming: true,
					InputPricePer1K:   m.inputPer1K,
					OutputPricePer1K:  m.outputPer1K,
				}
				if errCreate := tx.Create(&row).Error; errCreate != nil {
					return errCreate
				}
			}
		}
		return nil
	})
}
