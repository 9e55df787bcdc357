// Package providers implements the upstream LLM client layer: a common
// client contract, one adapter per supported vendor, and a resolver that
// turns a stored credential into a ready-to-use client.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelgate/modelgate/internal/models"
)

// ErrorType classifies a generation failure for deterministic HTTP mapping.
type ErrorType string

// Generation error types.
const (
	ErrorRateLimit      ErrorType = "rate_limit"
	ErrorBilling        ErrorType = "billing"
	ErrorAPI            ErrorType = "api_error"
	ErrorInvalidContext ErrorType = "invalid_context"
	ErrorTimeout        ErrorType = "timeout"
)

// ClientError is a structured generation failure. It is returned as a
// value, not panicked, so streaming and batch callers can react without
// exception-style control flow.
type ClientError struct {
	Type    ErrorType `json:"error_type"`
	Message string    `json:"error_message"`
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("providers: %s: %s", e.Type, e.Message)
}

// apiError builds a ClientError from an upstream HTTP status code.
func apiError(status int, message string) *ClientError {
	switch {
	case status == http.StatusTooManyRequests:
		return &ClientError{Type: ErrorRateLimit, Message: message}
	case status == http.StatusPaymentRequired || status == http.StatusForbidden:
		return &ClientError{Type: ErrorBilling, Message: message}
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		return &ClientError{Type: ErrorInvalidContext, Message: message}
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return &ClientError{Type: ErrorTimeout, Message: message}
	default:
		return &ClientError{Type: ErrorAPI, Message: message}
	}
}

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the inputs of one generation call. Prompt and
// SystemPrompt drive the single-turn path; Messages drives the
// conversation path.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

// TokenUsage is the canonical token triple reported by every client.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful generation outcome.
type Result struct {
	Text     string              `json:"text"`
	Tokens   TokenUsage          `json:"tokens"`
	Cost     float64             `json:"cost"`
	Model    string              `json:"model"`
	Provider models.ProviderCode `json:"provider"`
}

// TokenCount is the outcome of a token-counting call. Estimated is true
// only when no real tokenizer was available and a length heuristic was
// used instead.
type TokenCount struct {
	Count     int  `json:"token_count"`
	Estimated bool `json:"estimated"`
}

// StreamChunk is one element of a streaming sequence. A stream yields
// zero or more delta chunks followed by exactly one terminal chunk,
// which carries either the final usage and cost or an error.
type StreamChunk struct {
	Delta  string       `json:"text,omitempty"`
	Done   bool         `json:"done,omitempty"`
	Tokens *TokenUsage  `json:"tokens,omitempty"`
	Cost   float64      `json:"cost,omitempty"`
	Err    *ClientError `json:"error,omitempty"`
}

// Client is the contract every concrete provider adapter satisfies.
// Generation errors come back as *ClientError values; transport-level
// retries happen inside the client before an error is reported.
type Client interface {
	// Code identifies the upstream vendor.
	Code() models.ProviderCode

	// Generate runs a single-turn completion from req.Prompt and
	// req.SystemPrompt.
	Generate(ctx context.Context, req Request) (*Result, *ClientError)

	// GenerateConversation runs a completion over the full ordered
	// req.Messages context.
	GenerateConversation(ctx context.Context, req Request) (*Result, *ClientError)

	// Stream runs Generate incrementally. The returned channel is
	// closed after the terminal chunk.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError)

	// StreamConversation runs GenerateConversation incrementally.
	StreamConversation(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError)

	// CountTokens counts tokens in text for the given model, preferring
	// an exact tokenizer and degrading to an estimate.
	CountTokens(text, model string) TokenCount

	// Cost prices a request against the provider's built-in table.
	Cost(promptTokens, completionTokens int, model string) float64
}

// defaultStreamTimeout bounds a streaming call that receives no
// caller-supplied deadline.
const defaultStreamTimeout = 120 * time.Second
