package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
)

const openaiBaseURL = "https://api.openai.com/v1"

// chatClient talks to an OpenAI-style chat-completions API. OpenAI and
// Mistral share this wire format, so both are thin constructors over
// this adapter.
type chatClient struct {
	code      models.ProviderCode
	transport *transport
}

// NewOpenAIClient builds a client for the OpenAI chat-completions API.
func NewOpenAIClient(apiKey string) Client {
	return &chatClient{
		code: models.ProviderOpenAI,
		transport: newTransport(openaiBaseURL, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
	}
}

func (c *chatClient) Code() models.ProviderCode { return c.code }

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
	StreamOpts  *streamOption `json:"stream_options,omitempty"`
}

type streamOption struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatResponse is the chat-completions response body.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatMessages builds the wire message list from a single-turn request.
func chatMessages(req Request) []Message {
	msgs := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: models.RoleSystem, Content: req.SystemPrompt})
	}
	return append(msgs, Message{Role: models.RoleUser, Content: req.Prompt})
}

func (c *chatClient) Generate(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, chatMessages(req))
}

// GenerateConversation sends the full ordered context; chat-completions
// APIs support multi-turn natively so nothing is collapsed.
func (c *chatClient) GenerateConversation(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, req.Messages)
}

func (c *chatClient) complete(ctx context.Context, req Request, messages []Message) (*Result, *ClientError) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	var resp chatResponse
	if errCall := c.transport.postJSON(ctx, "/chat/completions", body, &resp); errCall != nil {
		return nil, errCall
	}
	if len(resp.Choices) == 0 {
		return nil, &ClientError{Type: ErrorAPI, Message: "empty choices in response"}
	}

	text := resp.Choices[0].Message.Content
	tokens := TokenUsage{}
	if resp.Usage != nil {
		tokens = TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	} else {
		tokens = estimateUsage(c, messages, text, req.Model)
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
		Provider: c.code,
	}, nil
}

func (c *chatClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, chatMessages(req))
}

func (c *chatClient) StreamConversation(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, req.Messages)
}

func (c *chatClient) stream(ctx context.Context, req Request, messages []Message) (<-chan StreamChunk, *ClientError) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
		StreamOpts:  &streamOption{IncludeUsage: true},
	}
	raw, errOpen := c.transport.postStream(ctx, "/chat/completions", body)
	if errOpen != nil {
		return nil, errOpen
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = raw.Close() }()

		var usage TokenUsage
		sawUsage := false
		scanner := bufio.NewScanner(raw)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := sseData(scanner.Text())
			if !ok {
				continue
			}
			if data == "[DONE]" {
				break
			}
			var event chatResponse
			if errDecode := json.Unmarshal([]byte(data), &event); errDecode != nil {
				continue
			}
			if event.Usage != nil {
				usage = TokenUsage{
					PromptTokens:     event.Usage.PromptTokens,
					CompletionTokens: event.Usage.CompletionTokens,
					TotalTokens:      event.Usage.TotalTokens,
				}
				sawUsage = true
			}
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				continue
			}
			if !emitChunk(ctx, out, StreamChunk{Delta: event.Choices[0].Delta.Content}) {
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			emitChunk(ctx, out, StreamChunk{Done: true, Err: &ClientError{Type: ErrorAPI, Message: errScan.Error()}})
			return
		}
		if !sawUsage {
			// Upstream omitted usage, leave zeros for the caller to estimate.
			usage = TokenUsage{}
		}
		emitChunk(ctx, out, StreamChunk{
			Done:   true,
			Tokens: &usage,
			Cost:   c.Cost(usage.PromptTokens, usage.CompletionTokens, req.Model),
		})
	}()
	return out, nil
}

func (c *chatClient) CountTokens(text, model string) TokenCount {
	return countTokens(text, model)
}

func (c *chatClient) Cost(promptTokens, completionTokens int, model string) float64 {
	return pricing.BuiltinCost(c.code, model, promptTokens, completionTokens)
}

// sseData strips the SSE data prefix from a line. Returns false for
// blank lines, comments, and other event fields.
func sseData(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// emitChunk delivers a chunk unless the caller has gone away. Reports
// false when the stream should stop.
func emitChunk(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// estimateUsage tokenizes locally when the provider response carried no
// usage block.
func estimateUsage(c Client, messages []Message, completion, model string) TokenUsage {
	var promptText strings.Builder
	for _, m := range messages {
		promptText.WriteString(m.Content)
		promptText.WriteString("\n")
	}
	prompt := c.CountTokens(promptText.String(), model).Count
	out := c.CountTokens(completion, model).Count
	return TokenUsage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out}
}
