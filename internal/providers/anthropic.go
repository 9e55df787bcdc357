package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"

	// The messages API requires max_tokens; applied when the caller
	// leaves it unset.
	anthropicDefaultMaxTokens = 1024
)

// anthropicClient talks to the Anthropic messages API.
type anthropicClient struct {
	transport *transport
}

// NewAnthropicClient builds a client for the Anthropic messages API.
func NewAnthropicClient(apiKey string) Client {
	return &anthropicClient{
		transport: newTransport(anthropicBaseURL, func(req *http.Request) {
			req.Header.Set("x-api-key", apiKey)
			req.Header.Set("anthropic-version", anthropicAPIVersion)
		}),
	}
}

func (c *anthropicClient) Code() models.ProviderCode { return models.ProviderAnthropic }

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

// anthropicStreamEvent covers the event types the stream reader cares
// about: message_start (input tokens), content_block_delta (text), and
// message_delta (output tokens).
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Usage *anthropicUsage `json:"usage"`
}

// anthropicBody converts a request to the messages API shape. System
// messages ride in the top-level system field, not the message list.
func anthropicBody(req Request, messages []Message, stream bool) anthropicRequest {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Stream:      stream,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = anthropicDefaultMaxTokens
	}
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if body.System == "" {
				body.System = m.Content
			}
			continue
		}
		body.Messages = append(body.Messages, m)
	}
	return body
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, []Message{{Role: models.RoleUser, Content: req.Prompt}})
}

// GenerateConversation sends the full ordered context; the messages API
// supports multi-turn natively.
func (c *anthropicClient) GenerateConversation(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, req.Messages)
}

func (c *anthropicClient) complete(ctx context.Context, req Request, messages []Message) (*Result, *ClientError) {
	var resp anthropicResponse
	if errCall := c.transport.postJSON(ctx, "/messages", anthropicBody(req, messages, false), &resp); errCall != nil {
		return nil, errCall
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	tokens := TokenUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Result{
		Text:     text,
		Tokens:   tokens,
		Cost:     c.Cost(tokens.PromptTokens, tokens.CompletionTokens, req.Model),
		Model:    model,
		Provider: models.ProviderAnthropic,
	}, nil
}

func (c *anthropicClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, []Message{{Role: models.RoleUser, Content: req.Prompt}})
}

func (c *anthropicClient) StreamConversation(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, req.Messages)
}

func (c *anthropicClient) stream(ctx context.Context, req Request, messages []Message) (<-chan StreamChunk, *ClientError) {
	raw, errOpen := c.transport.postStream(ctx, "/messages", anthropicBody(req, messages, true))
	if errOpen != nil {
		return nil, errOpen
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = raw.Close() }()

		var usage TokenUsage
		scanner := bufio.NewScanner(raw)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := sseData(scanner.Text())
			if !ok {
				continue
			}
			var event anthropicStreamEvent
			if errDecode := json.Unmarshal([]byte(data), &event); errDecode != nil {
				continue
			}
			switch event.Type {
			case "message_start":
				if event.Message != nil {
					usage.PromptTokens = event.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta.Text != "" {
					if !emitChunk(ctx, out, StreamChunk{Delta: event.Delta.Text}) {
						return
					}
				}
			case "message_delta":
				if event.Usage != nil {
					usage.CompletionTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				// Terminal event, usage is complete.
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			emitChunk(ctx, out, StreamChunk{Done: true, Err: &ClientError{Type: ErrorAPI, Message: errScan.Error()}})
			return
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		emitChunk(ctx, out, StreamChunk{
			Done:   true,
			Tokens: &usage,
			Cost:   c.Cost(usage.PromptTokens, usage.CompletionTokens, req.Model),
		})
	}()
	return out, nil
}

func (c *anthropicClient) CountTokens(text, model string) TokenCount {
	return countTokens(text, model)
}

func (c *anthropicClient) Cost(promptTokens, completionTokens int, model string) float64 {
	return pricing.BuiltinCost(models.ProviderAnthropic, model, promptTokens, completionTokens)
}
