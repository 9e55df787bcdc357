package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// PromptHandler manages saved prompts.
type PromptHandler struct {
	db *gorm.DB
}

// NewPromptHandler constructs a PromptHandler.
func NewPromptHandler(db *gorm.DB) *PromptHandler {
	return &PromptHandler{db: db}
}

// List returns the user's prompts, favorites first. An optional
// category query parameter filters by category id.
func (h *PromptHandler) List(c *gin.Context) {
	userID := getUserID(c)
	query := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category_id = ?", category)
	}

	var rows []models.SavedPrompt
	errFind := query.Order("is_favorite DESC, updated_at DESC").Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompts": rows})
}

// promptRequest defines the request body for prompt writes.
type promptRequest struct {
	CategoryID  *uint64 `json:"category_id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	Description string  `json:"description"`
}

// Create stores a new prompt.
func (h *PromptHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var body promptRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(body.Title)
	content := strings.TrimSpace(body.Content)
	if title == "" || content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title or content"})
		return
	}
	if body.CategoryID != nil && !h.ownsCategory(c, userID, *body.CategoryID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
		return
	}

	prompt := models.SavedPrompt{
		UserID:      userID,
		CategoryID:  body.CategoryID,
		Title:       title,
		Content:     content,
		Description: strings.TrimSpace(body.Description),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&prompt).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create prompt failed"})
		return
	}
	c.JSON(http.StatusCreated, prompt)
}

// Update modifies a prompt.
func (h *PromptHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body promptRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(body.Title)
	content := strings.TrimSpace(body.Content)
	if title == "" || content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title or content"})
		return
	}
	if body.CategoryID != nil && !h.ownsCategory(c, userID, *body.CategoryID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.SavedPrompt{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"category_id": body.CategoryID,
			"title":       title,
			"content":     content,
			"description": strings.TrimSpace(body.Description),
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update prompt failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a prompt.
func (h *PromptHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.SavedPrompt{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete prompt failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ToggleFavorite flips the favorite flag.
func (h *PromptHandler) ToggleFavorite(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var prompt models.SavedPrompt
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&prompt).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&prompt).
		Update("is_favorite", !prompt.IsFavorite).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update prompt failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": prompt.ID, "is_favorite": !prompt.IsFavorite})
}

// ownsCategory reports whether the category exists and belongs to the user.
func (h *PromptHandler) ownsCategory(c *gin.Context, userID, categoryID uint64) bool {
	var count int64
	h.db.WithContext(c.Request.Context()).Model(&models.ThreadCategory{}).
		Where("id = ? AND user_id = ?", categoryID, userID).
		Count(&count)
	return count > 0
}
