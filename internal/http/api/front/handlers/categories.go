package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// CategoryHandler manages thread categories.
type CategoryHandler struct {
	db *gorm.DB
}

// NewCategoryHandler constructs a CategoryHandler.
func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{db: db}
}

// List returns the user's categories.
func (h *CategoryHandler) List(c *gin.Context) {
	userID := getUserID(c)
	var rows []models.ThreadCategory
	errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": rows})
}

// categoryRequest defines the request body for category writes.
type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Create stores a new category.
func (h *CategoryHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var body categoryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	category := models.ThreadCategory{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		Color:       strings.TrimSpace(body.Color),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&category).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create category failed"})
		return
	}
	c.JSON(http.StatusCreated, category)
}

// Update renames or recolors a category.
func (h *CategoryHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body categoryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.ThreadCategory{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"name":        name,
			"description": strings.TrimSpace(body.Description),
			"color":       strings.TrimSpace(body.Color),
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update category failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a category. Threads and prompts keep existing with a
// dangling-free null category.
func (h *CategoryHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDetach := tx.Model(&models.Thread{}).
			Where("category_id = ? AND user_id = ?", id, userID).
			Update("category_id", nil).Error; errDetach != nil {
			return errDetach
		}
		if errDetach := tx.Model(&models.SavedPrompt{}).
			Where("category_id = ? AND user_id = ?", id, userID).
			Update("category_id", nil).Error; errDetach != nil {
			return errDetach
		}
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.ThreadCategory{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errTx != nil {
		if errTx == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete category failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
