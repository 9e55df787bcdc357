package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/chat"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// ThreadHandler manages conversation threads and their messages.
type ThreadHandler struct {
	db   *gorm.DB
	chat *chat.Service
}

// NewThreadHandler constructs a ThreadHandler.
func NewThreadHandler(db *gorm.DB, chatService *chat.Service) *ThreadHandler {
	return &ThreadHandler{db: db, chat: chatService}
}

// List returns the user's threads, pinned first, most recently active
// next. Archived threads are included only with ?archived=true.
func (h *ThreadHandler) List(c *gin.Context) {
	userID := getUserID(c)
	query := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if c.Query("archived") != "true" {
		query = query.Where("is_archived = ?", false)
	}
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category_id = ?", category)
	}

	var rows []models.Thread
	errFind := query.Order("is_pinned DESC, last_message_at DESC").Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": rows})
}

// createThreadRequest defines the request body for thread creation.
type createThreadRequest struct {
	Title       string   `json:"title"`
	CategoryID  *uint64  `json:"category_id"`
	ProviderID  uint64   `json:"provider_id"`
	ModelID     uint64   `json:"model_id"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

// Create starts a new thread bound to a provider+model.
func (h *ThreadHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	var body createThreadRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
		return
	}

	var model models.AIModel
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND provider_id = ? AND is_active = ?", body.ModelID, body.ProviderID, true).
		First(&model).Error; errFind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model not found for provider"})
		return
	}

	thread := models.Thread{
		UserID:      userID,
		CategoryID:  body.CategoryID,
		Title:       title,
		ProviderID:  body.ProviderID,
		ModelID:     model.ID,
		MaxTokens:   1000,
		Temperature: 0.7,
	}
	if body.MaxTokens != nil {
		thread.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		thread.Temperature = *body.Temperature
	}
	if errValidate := model.ValidateParameters(thread.MaxTokens, thread.Temperature); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&thread).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create thread failed"})
		return
	}
	c.JSON(http.StatusCreated, thread)
}

// Get returns one thread.
func (h *ThreadHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var thread models.Thread
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Model").
		Where("id = ? AND user_id = ?", id, userID).
		First(&thread).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// updateThreadRequest defines the request body for thread updates.
type updateThreadRequest struct {
	Title       *string  `json:"title"`
	CategoryID  *uint64  `json:"category_id"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	IsPinned    *bool    `json:"is_pinned"`
	IsArchived  *bool    `json:"is_archived"`
}

// Update modifies thread settings and flags.
func (h *ThreadHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body updateThreadRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var thread models.Thread
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Model").
		Where("id = ? AND user_id = ?", id, userID).
		First(&thread).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if body.Title != nil {
		title := strings.TrimSpace(*body.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty title"})
			return
		}
		thread.Title = title
	}
	if body.CategoryID != nil {
		thread.CategoryID = body.CategoryID
	}
	if body.MaxTokens != nil {
		thread.MaxTokens = *body.MaxTokens
	}
	if body.Temperature != nil {
		thread.Temperature = *body.Temperature
	}
	if errValidate := thread.Model.ValidateParameters(thread.MaxTokens, thread.Temperature); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if body.IsPinned != nil {
		thread.IsPinned = *body.IsPinned
	}
	if body.IsArchived != nil {
		thread.IsArchived = *body.IsArchived
	}

	if errSave := h.db.WithContext(c.Request.Context()).Save(&thread).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update thread failed"})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Delete removes a thread and its messages.
func (h *ThreadHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Thread{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("thread_id = ?", id).Delete(&models.Message{}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete thread failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListMessages returns a thread's messages, oldest first.
func (h *ThreadHandler) ListMessages(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var count int64
	h.db.WithContext(c.Request.Context()).Model(&models.Thread{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&count)
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}

	var rows []models.Message
	errFind := h.db.WithContext(c.Request.Context()).
		Where("thread_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": rows})
}

// sendMessageRequest defines the request body for a thread turn.
type sendMessageRequest struct {
	Content      string  `json:"content"`
	PreferenceID *uint64 `json:"preference_id"`
}

// SendMessage appends a user turn and returns the assistant reply.
func (h *ThreadHandler) SendMessage(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body sendMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
		return
	}

	assistant, errSend := h.chat.SendMessage(c.Request.Context(), userID, id, chat.SendInput{
		Content:      content,
		PreferenceID: body.PreferenceID,
	})
	if errSend != nil {
		respondServiceError(c, errSend)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": assistant})
}

// StreamMessage is the SSE variant of SendMessage. Each delta arrives
// as one data event; the final event carries the persisted message.
func (h *ThreadHandler) StreamMessage(c *gin.Context) {
	userID := getUserID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body sendMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
		return
	}

	events, errOpen := h.chat.StreamMessage(c.Request.Context(), userID, id, chat.SendInput{
		Content:      content,
		PreferenceID: body.PreferenceID,
	})
	if errOpen != nil {
		respondServiceError(c, errOpen)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for event := range events {
		payload, errEncode := json.Marshal(event)
		if errEncode != nil {
			continue
		}
		if _, errWrite := c.Writer.WriteString("data: " + string(payload) + "\n\n"); errWrite != nil {
			return
		}
		c.Writer.Flush()
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}
