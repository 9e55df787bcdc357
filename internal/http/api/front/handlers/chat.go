package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/chat"
)

// ChatHandler serves one-shot completions and token counting outside
// any thread.
type ChatHandler struct {
	chat *chat.Service
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chatService *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

// completionRequest defines the request body for a one-shot completion.
type completionRequest struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt"`
	MaxTokens    int      `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
	PreferenceID *uint64  `json:"preference_id"`
}

// Complete runs a single completion through the user's credential.
func (h *ChatHandler) Complete(c *gin.Context) {
	userID := getUserID(c)
	var body completionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing prompt"})
		return
	}
	if body.Provider == "" && body.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing provider or model"})
		return
	}

	in := chat.CompletionInput{
		ProviderCode: strings.TrimSpace(body.Provider),
		Model:        strings.TrimSpace(body.Model),
		Prompt:       prompt,
		SystemPrompt: strings.TrimSpace(body.SystemPrompt),
		MaxTokens:    body.MaxTokens,
		PreferenceID: body.PreferenceID,
	}
	if body.Temperature != nil {
		in.Temperature = *body.Temperature
	}

	out, errComplete := h.chat.Complete(c.Request.Context(), userID, in)
	if errComplete != nil {
		respondServiceError(c, errComplete)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":     out.Result.Text,
		"tokens":   out.Result.Tokens,
		"cost":     out.Result.Cost,
		"model":    out.Result.Model,
		"provider": out.Result.Provider,
		"cached":   out.Cached,
		"pricing":  out.Pricing,
	})
}

// tokenCountRequest defines the request body for token counting.
type tokenCountRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Text     string `json:"text"`
}

// CountTokens counts tokens in text with the model's tokenizer.
func (h *ChatHandler) CountTokens(c *gin.Context) {
	userID := getUserID(c)
	var body tokenCountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing text"})
		return
	}
	if body.Provider == "" && body.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing provider or model"})
		return
	}

	count, errCount := h.chat.CountTokens(userID, strings.TrimSpace(body.Provider), strings.TrimSpace(body.Model), body.Text)
	if errCount != nil {
		respondServiceError(c, errCount)
		return
	}
	c.JSON(http.StatusOK, count)
}
