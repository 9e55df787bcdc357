package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// ProviderHandler serves the provider and model reference data.
type ProviderHandler struct {
	db *gorm.DB
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(db *gorm.DB) *ProviderHandler {
	return &ProviderHandler{db: db}
}

// List returns all active providers with their active models preloaded.
func (h *ProviderHandler) List(c *gin.Context) {
	var rows []models.Provider
	errFind := h.db.WithContext(c.Request.Context()).
		Preload("Models", "is_active = ?", true).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		provider := &rows[i]
		out = append(out, gin.H{
			"id":           provider.ID,
			"code":         provider.Code,
			"display_name": provider.DisplayName,
			"description":  provider.Description,
			"usable":       provider.Usable(),
			"models":       modelViews(provider.Models),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// ListModels returns the active models of one provider.
func (h *ProviderHandler) ListModels(c *gin.Context) {
	providerID, ok := pathID(c)
	if !ok {
		return
	}

	var rows []models.AIModel
	errFind := h.db.WithContext(c.Request.Context()).
		Where("provider_id = ? AND is_active = ?", providerID, true).
		Order("code ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": modelViews(rows)})
}

// modelViews shapes model rows for responses.
func modelViews(rows []models.AIModel) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		out = append(out, gin.H{
			"id":                  m.ID,
			"provider_id":         m.ProviderID,
			"code":                m.Code,
			"display_name":        m.DisplayName,
			"max_context_length":  m.MaxContextLength,
			"supports_streaming":  m.SupportsStreaming,
			"input_price_per_1k":  m.InputPricePer1K,
			"output_price_per_1k": m.OutputPricePer1K,
		})
	}
	return out
}
