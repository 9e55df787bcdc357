package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// PreferenceHandler manages saved model preferences.
type PreferenceHandler struct {
	db *gorm.DB
}

// NewPreferenceHandler constructs a PreferenceHandler.
func NewPreferenceHandler(db *gorm.DB) *PreferenceHandler {
	return &PreferenceHandler{db: db}
}

// preferenceView shapes a preference row for responses.
func preferenceView(pref *models.ModelPreference) gin.H {
	return gin.H{
		"id":                         pref.ID,
		"credential_id":              pref.CredentialID,
		"provider_id":                pref.ProviderID,
		"model_id":                   pref.ModelID,
		"max_tokens":                 pref.MaxTokens,
		"temperature":                pref.Temperature,
		"system_prompt":              pref.SystemPrompt,
		"is_default":                 pref.IsDefault,
		"input_cost_override":        pref.InputCostOverride,
		"output_cost_override":       pref.OutputCostOverride,
		"cached_input_cost_override": pref.CachedInputCostOverride,
		"description":                pref.Description,
		"use_count":                  pref.UseCount,
		"last_used_at":               pref.LastUsedAt,
		"created_at":                 pref.CreatedAt,
		"updated_at":                 pref.UpdatedAt,
	}
}

// List returns the user's preferences, defaults first.
func (h *PreferenceHandler) List(c *gin.Context) {
	userID := getUserID(c)
	var rows []models.ModelPreference
	errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, preferenceView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"preferences": out})
}

// preferenceRequest defines the request body for preference writes.
type preferenceRequest struct {
	CredentialID            uint64   `json:"credential_id"`
	ModelID                 uint64   `json:"model_id"`
	MaxTokens               *int     `json:"max_tokens"`
	Temperature             *float64 `json:"temperature"`
	SystemPrompt            *string  `json:"system_prompt"`
	IsDefault               *bool    `json:"is_default"`
	InputCostOverride       *float64 `json:"input_cost_override"`
	OutputCostOverride      *float64 `json:"output_cost_override"`
	CachedInputCostOverride *float64 `json:"cached_input_cost_override"`
	Description             *string  `json:"description"`
}

// Create stores a new preference. Setting is_default clears the
// previous default in the same credential scope, atomically.
func (h *PreferenceHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var body preferenceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.CredentialID == 0 || body.ModelID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credential_id or model_id"})
		return
	}

	var cred models.Credential
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", body.CredentialID, userID).
		First(&cred).Error; errFind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential not found"})
		return
	}
	var model models.AIModel
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND provider_id = ?", body.ModelID, cred.ProviderID).
		First(&model).Error; errFind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model not found for credential provider"})
		return
	}

	pref := models.ModelPreference{
		UserID:       userID,
		CredentialID: cred.ID,
		ProviderID:   cred.ProviderID,
		ModelID:      model.ID,
		MaxTokens:    1000,
		Temperature:  0.7,
	}
	if errApply := applyPreferenceFields(&pref, &body, &model); errApply != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errApply.Error()})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if pref.IsDefault {
			if errClear := clearDefault(tx, userID, cred.ID); errClear != nil {
				return errClear
			}
		}
		return tx.Create(&pref).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create preference failed"})
		return
	}
	c.JSON(http.StatusCreated, preferenceView(&pref))
}

// Update modifies a preference, keeping default exclusivity.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body preferenceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var pref models.ModelPreference
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&pref).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "preference not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var model models.AIModel
	if errFind := h.db.WithContext(c.Request.Context()).First(&model, pref.ModelID).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errApply := applyPreferenceFields(&pref, &body, &model); errApply != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errApply.Error()})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if pref.IsDefault {
			if errClear := clearDefault(tx, userID, pref.CredentialID); errClear != nil {
				return errClear
			}
		}
		return tx.Save(&pref).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update preference failed"})
		return
	}
	c.JSON(http.StatusOK, preferenceView(&pref))
}

// Delete removes a preference.
func (h *PreferenceHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.ModelPreference{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete preference failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "preference not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// applyPreferenceFields overlays request fields onto a preference,
// validating generation parameters against the model limits.
func applyPreferenceFields(pref *models.ModelPreference, body *preferenceRequest, model *models.AIModel) error {
	if body.MaxTokens != nil {
		pref.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		pref.Temperature = *body.Temperature
	}
	if errValidate := model.ValidateParameters(pref.MaxTokens, pref.Temperature); errValidate != nil {
		return errValidate
	}
	if body.SystemPrompt != nil {
		pref.SystemPrompt = strings.TrimSpace(*body.SystemPrompt)
	}
	if body.IsDefault != nil {
		pref.IsDefault = *body.IsDefault
	}
	if body.InputCostOverride != nil {
		pref.InputCostOverride = body.InputCostOverride
	}
	if body.OutputCostOverride != nil {
		pref.OutputCostOverride = body.OutputCostOverride
	}
	if body.CachedInputCostOverride != nil {
		pref.CachedInputCostOverride = body.CachedInputCostOverride
	}
	if body.Description != nil {
		pref.Description = strings.TrimSpace(*body.Description)
	}
	return nil
}

// clearDefault unsets the default flag for every preference in the
// (user, credential) scope. Runs inside the caller's transaction so a
// new default appears atomically.
func clearDefault(tx *gorm.DB, userID, credentialID uint64) error {
	return tx.Model(&models.ModelPreference{}).
		Where("user_id = ? AND credential_id = ? AND is_default = ?", userID, credentialID, true).
		Update("is_default", false).Error
}
