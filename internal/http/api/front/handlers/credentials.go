package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/util"
	"gorm.io/gorm"
)

// CredentialHandler manages user provider API keys.
type CredentialHandler struct {
	db          *gorm.DB
	clientCache *providers.ClientCache
}

// NewCredentialHandler constructs a CredentialHandler.
func NewCredentialHandler(db *gorm.DB, clientCache *providers.ClientCache) *CredentialHandler {
	return &CredentialHandler{db: db, clientCache: clientCache}
}

// credentialView shapes a credential row for responses. The secret is
// never returned in full.
func credentialView(cred *models.Credential) gin.H {
	return gin.H{
		"id":           cred.ID,
		"provider_id":  cred.ProviderID,
		"display_name": cred.DisplayName,
		"secret_hint":  util.HideAPIKey(cred.SecretValue),
		"is_active":    cred.IsActive,
		"created_at":   cred.CreatedAt,
		"updated_at":   cred.UpdatedAt,
	}
}

// List returns the user's credentials, newest first.
func (h *CredentialHandler) List(c *gin.Context) {
	userID := getUserID(c)
	var rows []models.Credential
	errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, credentialView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"credentials": out})
}

// createCredentialRequest defines the request body for key creation.
type createCredentialRequest struct {
	ProviderID   uint64 `json:"provider_id"`
	ProviderCode string `json:"provider_code"`
	SecretValue  string `json:"secret_value"`
	DisplayName  string `json:"display_name"`
}

// Create stores a new provider key. When no provider is named, the
// provider is detected from the key format.
func (h *CredentialHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var body createCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	secret := strings.TrimSpace(body.SecretValue)
	if secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing secret_value"})
		return
	}

	provider, errProvider := h.resolveProvider(c, body.ProviderID, body.ProviderCode, secret)
	if errProvider != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errProvider.Error()})
		return
	}

	cred := models.Credential{
		UserID:      userID,
		ProviderID:  provider.ID,
		SecretValue: secret,
		DisplayName: strings.TrimSpace(body.DisplayName),
		IsActive:    true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&cred).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create credential failed"})
		return
	}
	c.JSON(http.StatusCreated, credentialView(&cred))
}

// resolveProvider picks the provider by id, by code, or by key format.
func (h *CredentialHandler) resolveProvider(c *gin.Context, providerID uint64, providerCode, secret string) (*models.Provider, error) {
	query := h.db.WithContext(c.Request.Context()).Where("is_active = ?", true)
	switch {
	case providerID != 0:
		query = query.Where("id = ?", providerID)
	case strings.TrimSpace(providerCode) != "":
		parsed, errParse := models.ParseProviderCode(providerCode)
		if errParse != nil {
			return nil, errParse
		}
		query = query.Where("code = ?", string(parsed))
	default:
		detected := models.DetectProviderCode(secret)
		if detected == "" {
			return nil, errors.New("provider not given and key format not recognized")
		}
		query = query.Where("code = ?", string(detected))
	}

	var provider models.Provider
	if errFind := query.First(&provider).Error; errFind != nil {
		return nil, errors.New("provider not found or inactive")
	}
	return &provider, nil
}

// updateCredentialRequest defines the request body for key updates.
type updateCredentialRequest struct {
	SecretValue *string `json:"secret_value"`
	DisplayName *string `json:"display_name"`
	IsActive    *bool   `json:"is_active"`
}

// Update rotates, renames, or toggles a credential. Any change drops
// the cached client for it.
func (h *CredentialHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body updateCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var cred models.Credential
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&cred).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{}
	if body.SecretValue != nil {
		secret := strings.TrimSpace(*body.SecretValue)
		if secret == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty secret_value"})
			return
		}
		updates["secret_value"] = secret
	}
	if body.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*body.DisplayName)
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&cred).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update credential failed"})
		return
	}
	if h.clientCache != nil {
		h.clientCache.Invalidate(cred.ID)
	}
	c.JSON(http.StatusOK, credentialView(&cred))
}

// Delete removes a credential and drops its cached client.
func (h *CredentialHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Credential{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete credential failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
		return
	}
	if h.clientCache != nil {
		h.clientCache.Invalidate(id)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
